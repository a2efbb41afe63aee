package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

type DeserializerSuite struct {
	suite.Suite

	engine *Engine
}

func (s *DeserializerSuite) SetupTest() {
	s.engine = newTestEngine()
}

func (s *DeserializerSuite) roundTrip(root any) any {
	data, err := s.engine.SerializeToJSON(root)
	s.Require().NoError(err)
	out, err := s.engine.DeserializeFromJSON(data)
	s.Require().NoError(err)
	return out
}

func (s *DeserializerSuite) TestObjectRoundTrip() {
	in := &Battery{Charge: 0.5, Capacity: 100, Cells: 4}
	out := s.roundTrip(in)
	s.Equal(in, out)
}

func (s *DeserializerSuite) TestPrimitiveRoundTrip() {
	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{5, int64(5)},
		{2.0, 2.0},
		{"s", "s"},
		{[]any{1, "a"}, []any{int64(1), "a"}},
		{map[string]any{"k": 1.5}, map[string]any{"k": 1.5}},
	}
	for _, c := range cases {
		s.Equal(c.want, s.roundTrip(c.in))
	}
}

func (s *DeserializerSuite) TestGraphRoundTrip() {
	craft := &Spacecraft{
		Name:    "voyager",
		Battery: Battery{Cells: 8},
		Parts:   []any{&Battery{Cells: 1}, Tuple{1, 2}, "antenna"},
		Meta:    map[string]any{"k": 1.5},
	}
	craft.Hull = &Hull{Mass: 721.9, Owner: craft}

	out, ok := s.roundTrip(craft).(*Spacecraft)
	s.Require().True(ok)
	s.Equal("voyager", out.Name)
	s.Equal(Battery{Cells: 8}, out.Battery)
	s.Require().NotNil(out.Hull)
	s.Equal(721.9, out.Hull.Mass)
	s.Nil(out.Hull.Owner)
	s.Equal([]any{&Battery{Cells: 1}, Tuple{int64(1), int64(2)}, "antenna"}, out.Parts)
	s.Equal(map[string]any{"k": 1.5}, out.Meta)
}

func (s *DeserializerSuite) TestSharedLeafBecomesDistinct() {
	leaf := &Battery{Cells: 2}
	out := s.roundTrip(&Pair{Left: leaf, Right: leaf}).(*Pair)
	s.Equal(out.Left, out.Right)
	s.NotSame(out.Left, out.Right)
}

func (s *DeserializerSuite) TestTypedContainers() {
	in := &Cargo{
		Tags:     typeutil.NewSet("b", "a"),
		Modes:    NewFrozenSet("idle"),
		Position: Tuple{1, 2.5},
		Grid:     [2]int{3, 4},
		Counts:   map[string]int{"z": 1, "a": 2},
		ByID:     map[int]string{2: "two", 10: "ten"},
		Payload:  []byte("hi"),
		Launched: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Extra:    []any{1, "x"},
	}
	out := s.roundTrip(in).(*Cargo)
	s.True(out.Tags.Equal(typeutil.NewSet("a", "b")))
	s.True(out.Modes.Equal(NewFrozenSet("idle")))
	s.Equal(Tuple{int64(1), 2.5}, out.Position)
	s.Equal([2]int{3, 4}, out.Grid)
	s.Equal(in.Counts, out.Counts)
	s.Equal(in.ByID, out.ByID)
	s.Equal([]byte("hi"), out.Payload)
	s.True(in.Launched.Equal(out.Launched))
	s.Equal([]any{int64(1), "x"}, out.Extra)
}

func (s *DeserializerSuite) TestUntypedContainers() {
	out, err := s.engine.Deserialize(`{"__type__":"set","items":[1,2,2]}`)
	s.Require().NoError(err)
	set, ok := out.(typeutil.Set[any])
	s.Require().True(ok)
	s.Equal(2, set.Len())
	s.True(set.Contain(int64(1)))

	out, err = s.engine.Deserialize(`{"__type__":"frozenset","items":["a"]}`)
	s.Require().NoError(err)
	s.True(out.(FrozenSet).Contain("a"))

	out, err = s.engine.Deserialize(`{"__type__":"tuple","items":[1,"a"]}`)
	s.Require().NoError(err)
	s.Equal(Tuple{int64(1), "a"}, out)

	_, err = s.engine.Deserialize(`{"__type__":"set","items":[[1]]}`)
	s.ErrorIs(err, merr.ErrDeserialization)
}

func (s *DeserializerSuite) TestUnknownType() {
	_, err := s.engine.Deserialize(`{"__type__":"Ghost","x":1}`)
	s.ErrorIs(err, merr.ErrUnknownType)
	s.Equal("Ghost", merr.TypeName(err))

	_, err = s.engine.Deserialize(`{"__type__":"Pair","Left":{"__type__":"Ghost"}}`)
	s.ErrorIs(err, merr.ErrUnknownType)
}

func (s *DeserializerSuite) TestMalformedContainer() {
	_, err := s.engine.Deserialize(`{"__type__":"set"}`)
	s.ErrorIs(err, merr.ErrMalformedContainer)
	s.Equal("set", merr.Tag(err))

	_, err = s.engine.Deserialize(`{"__type__":"tuple","items":{"a":1}}`)
	s.ErrorIs(err, merr.ErrMalformedContainer)
	s.Equal("tuple", merr.Tag(err))

	_, err = s.engine.Deserialize(`{"__type__":5}`)
	s.ErrorIs(err, merr.ErrMalformedContainer)

	_, err = s.engine.Deserialize(`{"__recursion__":"loop"}`)
	s.ErrorIs(err, merr.ErrMalformedContainer)
}

func (s *DeserializerSuite) TestMarkerPlaceholder() {
	out, err := s.engine.Deserialize(`{"__recursion__":"cycle","__type__":"Node","__repr__":"<n>"}`)
	s.Require().NoError(err)
	s.Equal(&Placeholder{Kind: MarkerCycleDetected, TypeName: "Node", Fallback: "<n>"}, out)

	out, err = s.engine.Deserialize(`{"__recursion__":true,"__repr__":"deep"}`)
	s.Require().NoError(err)
	s.Equal(MarkerDepthExceeded, out.(*Placeholder).Kind)

	out, err = s.engine.Deserialize(`{"__recursion__":true,"__type__":"Node","__repr__":"x"}`)
	s.Require().NoError(err)
	s.Equal(MarkerCycleDetected, out.(*Placeholder).Kind)

	// 接口槽位保留占位对象
	out, err = s.engine.Deserialize(`{"__type__":"Spacecraft","Parts":[{"__recursion__":"depth","__type__":"Hull","__repr__":"h"}]}`)
	s.Require().NoError(err)
	s.IsType(&Placeholder{}, out.(*Spacecraft).Parts[0])
}

func (s *DeserializerSuite) TestMarkerInTypedSlot() {
	n := &Node{Name: "a"}
	n.Next = n
	out := s.roundTrip(n).(*Node)
	s.Equal("a", out.Name)
	s.Nil(out.Next)
}

func (s *DeserializerSuite) TestExcludedFieldsStayZero() {
	out := s.roundTrip(&Thruster{Name: "ion", Thrust: 1.5, Heat: 300, Debug: "trace"}).(*Thruster)
	s.Equal(&Thruster{Name: "ion"}, out)
}

func (s *DeserializerSuite) TestFieldSetter() {
	out := s.roundTrip(&Sensor{Name: "cam", raw: make([]float64, 3)}).(*Sensor)
	s.Equal("cam", out.Name)
	s.Len(out.raw, 3)
}

func (s *DeserializerSuite) TestOpaqueFieldsStayZero() {
	out := s.roundTrip(&Probe{Name: "p", Callback: func() {}, Signal: make(chan int)}).(*Probe)
	s.Equal("p", out.Name)
	s.Nil(out.Callback)
	s.Nil(out.Signal)
}

func (s *DeserializerSuite) TestReservedKeysRoundTrip() {
	labeled := &Labeled{Meta: map[string]string{"__type__": "label", "__recursion__": "cycle", "owner": "ops"}}
	s.Equal(labeled, s.roundTrip(labeled))

	tagged := &Tagged{Mode: "cycle", Class: "set"}
	s.Equal(tagged, s.roundTrip(tagged))

	out, err := s.engine.DeserializeFromJSON([]byte(`{"___type__":"label","owner":"ops"}`))
	s.Require().NoError(err)
	s.Equal(map[string]any{"__type__": "label", "owner": "ops"}, out)
}

func (s *DeserializerSuite) TestSnapshotterExclusionStaysZero() {
	out := s.roundTrip(&Gauge{Reading: 1.5, Secret: "pw"}).(*Gauge)
	s.Equal(&Gauge{Reading: 1.5}, out)
}

func (s *DeserializerSuite) TestOpaqueSlotReportsOneKind() {
	_, err := s.engine.DeserializeFromJSON([]byte(`{"__type__":"Probe","Name":"p","Signal":7}`))
	s.ErrorIs(err, merr.ErrDeserialization)
	s.NotErrorIs(err, merr.ErrOperationNotSupported)
	s.Equal("$.Signal", merr.Path(err))
}

func (s *DeserializerSuite) TestEmbeddedRoundTrip() {
	in := &Derived{Base: Base{ID: 1}, Label: "x"}
	s.Equal(in, s.roundTrip(in))
}

func (s *DeserializerSuite) TestInterfaceField() {
	out := s.roundTrip(&Holder{Item: &Named{Name: "n"}}).(*Holder)
	s.Equal("Named(n)", out.Item.String())
}

func (s *DeserializerSuite) TestUnknownField() {
	_, err := s.engine.Deserialize(`{"__type__":"Battery","voltage":3}`)
	s.ErrorIs(err, merr.ErrDeserialization)
	s.Equal("$.voltage", merr.Path(err))
}

func (s *DeserializerSuite) TestPlainTreeInput() {
	out, err := s.engine.Deserialize(map[string]any{
		"__type__": "Battery",
		"charge":   0.5,
		"capacity": 1.0,
		"Cells":    2,
	})
	s.Require().NoError(err)
	s.Equal(&Battery{Charge: 0.5, Capacity: 1, Cells: 2}, out)

	v, err := s.engine.Serialize(&Battery{Cells: 3})
	s.Require().NoError(err)
	out, err = s.engine.Deserialize(v)
	s.Require().NoError(err)
	s.Equal(&Battery{Cells: 3}, out)
}

func (s *DeserializerSuite) TestInvalidInput() {
	_, err := s.engine.Deserialize(`{"a":`)
	s.ErrorIs(err, merr.ErrDeserialization)

	_, err = s.engine.Deserialize(struct{}{})
	s.ErrorIs(err, merr.ErrDeserialization)
}

func (s *DeserializerSuite) TestObjectSlotMismatch() {
	_, err := DeserializeAs[Battery](s.engine.Deserializer(), `{"__type__":"Node","Name":"x"}`)
	s.ErrorIs(err, merr.ErrDeserialization)
}

func TestDeserializer(t *testing.T) {
	suite.Run(t, new(DeserializerSuite))
}

func TestDeserializeInto(t *testing.T) {
	d := newTestEngine().Deserializer()

	var i8 int8
	assert.ErrorIs(t, d.DeserializeInto("300", &i8), merr.ErrDeserialization)

	var u uint
	assert.Error(t, d.DeserializeInto("-1", &u))

	var i int
	assert.Error(t, d.DeserializeInto("1.5", &i))
	require.NoError(t, d.DeserializeInto("2.0", &i))
	assert.Equal(t, 2, i)
	assert.Error(t, d.DeserializeInto(`"x"`, &i))

	assert.ErrorIs(t, d.DeserializeInto("1", nil), merr.ErrParameterInvalid)
	assert.ErrorIs(t, d.DeserializeInto("1", i), merr.ErrParameterInvalid)

	byID, err := DeserializeAs[map[int]string](d, `{"1":"a","20":"b"}`)
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "a", 20: "b"}, byID)

	_, err = DeserializeAs[map[int]string](d, `{"one":"a"}`)
	assert.ErrorIs(t, err, merr.ErrDeserialization)

	set, err := DeserializeAs[map[string]struct{}](d, `{"__type__":"set","items":["a","b"]}`)
	require.NoError(t, err)
	assert.Len(t, set, 2)

	flags, err := DeserializeAs[map[string]bool](d, `{"__type__":"frozenset","items":["on"]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"on": true}, flags)

	grid, err := DeserializeAs[[3]int](d, `{"__type__":"tuple","items":[1,2]}`)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 2, 0}, grid)

	_, err = DeserializeAs[[1]int](d, `[1,2]`)
	assert.ErrorIs(t, err, merr.ErrDeserialization)

	nodes, err := DeserializeAs[[]*Node](d, `[{"__recursion__":"cycle","__type__":"Node","__repr__":"x"}]`)
	require.NoError(t, err)
	assert.Equal(t, []*Node{nil}, nodes)

	b, err := DeserializeAs[Battery](d, `{"__type__":"Battery","Cells":4}`)
	require.NoError(t, err)
	assert.Equal(t, Battery{Cells: 4}, b)

	b, err = DeserializeAs[Battery](d, `{"capacity":2.0}`)
	require.NoError(t, err)
	assert.Equal(t, Battery{Capacity: 2}, b)

	ts, err := DeserializeAs[time.Time](d, `"2024-01-02T03:04:05Z"`)
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())
}
