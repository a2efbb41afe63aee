package snapshot

import (
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

type SerializerSuite struct {
	suite.Suite

	engine *Engine
}

func (s *SerializerSuite) SetupTest() {
	s.engine = newTestEngine()
}

func (s *SerializerSuite) TestPrimitives() {
	cases := []struct {
		in   any
		want *Value
	}{
		{nil, Null()},
		{true, Bool(true)},
		{42, Int(42)},
		{int8(-3), Int(-3)},
		{uint16(7), Int(7)},
		{3.5, Float(3.5)},
		{float32(0.5), Float(0.5)},
		{"x", Str("x")},
		{(*Battery)(nil), Null()},
	}
	for _, c := range cases {
		v, err := s.engine.Serialize(c.in)
		s.Require().NoError(err)
		s.True(c.want.Equal(v), "%v: got %s", c.in, v)
	}

	_, err := s.engine.Serialize(uint64(math.MaxUint64))
	s.ErrorIs(err, merr.ErrSerialization)
}

func (s *SerializerSuite) TestObjectJSON() {
	data, err := s.engine.SerializeToJSON(&Battery{Charge: 0.5, Capacity: 100, Cells: 4})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Battery","charge":0.5,"capacity":100.0,"Cells":4}`, string(data))

	// 值与指针输出一致
	data2, err := s.engine.SerializeToJSON(Battery{Charge: 0.5, Capacity: 100, Cells: 4})
	s.Require().NoError(err)
	s.Equal(string(data), string(data2))
}

func (s *SerializerSuite) TestContainers() {
	c := &Cargo{
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
	v, err := s.engine.Serialize(c)
	s.Require().NoError(err)
	s.Equal(KindObject, v.Kind())
	s.Equal(`{"__type__":"set","items":["a","b"]}`, mustJSON(v.Get("Tags")))
	s.Equal(`{"__type__":"frozenset","items":["idle"]}`, mustJSON(v.Get("Modes")))
	s.Equal(`{"__type__":"tuple","items":[1,2.5]}`, mustJSON(v.Get("Position")))
	s.Equal(`{"__type__":"tuple","items":[3,4]}`, mustJSON(v.Get("Grid")))
	s.Equal(`{"a":2,"z":1}`, mustJSON(v.Get("Counts")))
	s.Equal(`{"10":"ten","2":"two"}`, mustJSON(v.Get("ByID")))
	s.Equal(`"aGk="`, mustJSON(v.Get("Payload")))
	s.Equal(`"2024-01-02T03:04:05Z"`, mustJSON(v.Get("Launched")))
	s.Equal(`[1,"x"]`, mustJSON(v.Get("Extra")))

	empty, err := s.engine.Serialize(&Cargo{})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"frozenset","items":[]}`, mustJSON(empty.Get("Modes")))
	s.True(empty.Get("Tags").IsNull())
}

func (s *SerializerSuite) TestSelfCycle() {
	n := &Node{Name: "a"}
	n.Next = n
	v, err := s.engine.Serialize(n)
	s.Require().NoError(err)

	m, err := v.Get("Next").AsMarker()
	s.Require().NoError(err)
	s.Equal(MarkerCycleDetected, m.Kind)
	s.Equal("Node", m.TypeName)
	s.True(strings.HasPrefix(m.Fallback, "<*snapshot.Node at 0x"), m.Fallback)

	data, err := v.MarshalJSON()
	s.Require().NoError(err)
	s.Contains(string(data), `"Next":{"__recursion__":"cycle","__type__":"Node"`)
}

func (s *SerializerSuite) TestMutualCycle() {
	a := &Node{Name: "a"}
	b := &Node{Name: "b", Next: a}
	a.Next = b
	v, err := s.engine.Serialize(a)
	s.Require().NoError(err)
	s.Equal(KindObject, v.Get("Next").Kind())
	s.Equal(KindMarker, v.Get("Next").Get("Next").Kind())
}

func (s *SerializerSuite) TestCycleThroughCollections() {
	l := []any{nil}
	l[0] = l
	v, err := s.engine.Serialize(l)
	s.Require().NoError(err)
	s.Equal(KindMarker, v.Index(0).Kind())

	m := map[string]any{}
	m["self"] = m
	v, err = s.engine.Serialize(m)
	s.Require().NoError(err)
	s.Equal(KindMarker, v.Get("self").Kind())
}

func (s *SerializerSuite) TestSharedLeafIsNotCycle() {
	leaf := &Battery{Cells: 2}
	v, err := s.engine.Serialize(&Pair{Left: leaf, Right: leaf})
	s.Require().NoError(err)
	s.Equal(KindObject, v.Get("Left").Kind())
	s.Equal(KindObject, v.Get("Right").Kind())
	s.True(v.Get("Left").Equal(v.Get("Right")))
}

func (s *SerializerSuite) TestDepthLimit() {
	engine := newTestEngine(WithMaxDepth(3))
	v, err := engine.Serialize(chain(10))
	s.Require().NoError(err)

	cur := v
	for i := 0; i < 3; i++ {
		cur = cur.Get("Next")
		s.Require().Equal(KindObject, cur.Kind())
	}
	m, err := cur.Get("Next").AsMarker()
	s.Require().NoError(err)
	s.Equal(MarkerDepthExceeded, m.Kind)
	s.Equal("Node", m.TypeName)
}

func (s *SerializerSuite) TestDefaultDepthLimit() {
	before := testutil.ToFloat64(metrics.SnapshotMarkers.WithLabelValues(metrics.DepthMarkerLabel))
	v, err := s.engine.Serialize(chain(DefaultMaxDepth + 10))
	s.Require().NoError(err)

	hops := 0
	cur := v
	for cur.Kind() == KindObject {
		cur = cur.Get("Next")
		hops++
	}
	s.Equal(KindMarker, cur.Kind())
	s.Equal(DefaultMaxDepth+1, hops)
	s.Equal(before+1, testutil.ToFloat64(metrics.SnapshotMarkers.WithLabelValues(metrics.DepthMarkerLabel)))
}

func (s *SerializerSuite) TestExclusionLevels() {
	data, err := s.engine.SerializeToJSON(&Thruster{Name: "ion", Thrust: 1.5, Heat: 300, Debug: "trace"})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Thruster","Name":"ion"}`, string(data))
}

func (s *SerializerSuite) TestFieldFallback() {
	before := testutil.ToFloat64(metrics.SnapshotFieldFallbacks.WithLabelValues("Probe"))
	v, err := s.engine.Serialize(&Probe{Name: "p", Callback: func() {}, Signal: make(chan int)})
	s.Require().NoError(err)

	s.Equal(`"p"`, mustJSON(v.Get("Name")))
	callback, err := v.Get("Callback").AsStr()
	s.Require().NoError(err)
	s.True(strings.HasPrefix(callback, "<func() at 0x"), callback)
	signal, err := v.Get("Signal").AsStr()
	s.Require().NoError(err)
	s.True(strings.HasPrefix(signal, "<chan int at 0x"), signal)
	s.Equal(before+2, testutil.ToFloat64(metrics.SnapshotFieldFallbacks.WithLabelValues("Probe")))
}

func (s *SerializerSuite) TestUnsupportedRoot() {
	_, err := s.engine.Serialize(func() {})
	s.ErrorIs(err, merr.ErrSerialization)
	s.NotErrorIs(err, merr.ErrOperationNotSupported)
	s.Contains(err.Error(), "unsupported operation")

	_, err = s.engine.SerializeToJSON(make(chan int))
	s.ErrorIs(err, merr.ErrSerialization)
}

func (s *SerializerSuite) TestNonFiniteFloat() {
	v, err := s.engine.Serialize(math.NaN())
	s.Require().NoError(err)
	s.Equal(KindFloat, v.Kind())

	_, err = s.engine.SerializeToJSON(math.Inf(1))
	s.ErrorIs(err, merr.ErrSerialization)
}

func (s *SerializerSuite) TestSnapshotHookReplacement() {
	v, err := s.engine.Serialize(&Secret{Value: "hunter2"})
	s.Require().NoError(err)
	s.Equal(`{"masked":"***"}`, mustJSON(v))
}

func (s *SerializerSuite) TestSnapshotHookReturnsSelf() {
	v, err := s.engine.Serialize(Clock{Tick: 7, Scratch: []int{1, 2}})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Clock","Tick":7,"Scratch":null}`, mustJSON(v))
}

func (s *SerializerSuite) TestSnapshotHookFailureFallsBack() {
	v, err := s.engine.Serialize(&Flaky{Level: 2})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Flaky","Level":2}`, mustJSON(v))

	v, err = s.engine.Serialize(&Panicky{Level: 3})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Panicky","Level":3}`, mustJSON(v))
}

func (s *SerializerSuite) TestStateProvider() {
	v, err := s.engine.Serialize(&Sensor{Name: "cam", raw: make([]float64, 3)})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Sensor","name":"cam","samples":3}`, mustJSON(v))
}

func (s *SerializerSuite) TestEmbeddedAndUnexported() {
	v, err := s.engine.Serialize(&Derived{Base: Base{ID: 1}, Label: "x"})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Derived","ID":1,"Label":"x"}`, mustJSON(v))

	v, err = s.engine.Serialize(&Secretive{Visible: 1, hidden: 2})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Secretive","Visible":1}`, mustJSON(v))
}

func (s *SerializerSuite) TestUnregisteredTypeUsesGoName() {
	type local struct{ A int }
	v, err := NewSerializer(nil).Serialize(&local{A: 1})
	s.Require().NoError(err)
	obj, err := v.AsObject()
	s.Require().NoError(err)
	s.Equal("local", obj.TypeName)
}

func (s *SerializerSuite) TestStringerFallback() {
	n := &Named{Name: "x"}
	n.Self = n
	v, err := s.engine.Serialize(n)
	s.Require().NoError(err)
	m, err := v.Get("Self").AsMarker()
	s.Require().NoError(err)
	s.Equal("Named(x)", m.Fallback)

	short := newTestEngine(WithFallbackMaxLen(5))
	v, err = short.Serialize(n)
	s.Require().NoError(err)
	m, err = v.Get("Self").AsMarker()
	s.Require().NoError(err)
	s.Equal("Named...", m.Fallback)
}

func (s *SerializerSuite) TestFallbackTruncatesOnRuneBoundary() {
	n := &Named{Name: "éé"}
	n.Self = n
	short := newTestEngine(WithFallbackMaxLen(7))
	v, err := short.Serialize(n)
	s.Require().NoError(err)
	m, err := v.Get("Self").AsMarker()
	s.Require().NoError(err)
	s.Equal("Named(...", m.Fallback)
	s.True(utf8.ValidString(m.Fallback))
}

func (s *SerializerSuite) TestSnapshotterValueKeepsInstanceExclusion() {
	v, err := s.engine.Serialize(&Gauge{Reading: 1, Secret: "pw"})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Gauge","Reading":1.0}`, mustJSON(v))

	v, err = s.engine.Serialize(Gauge{Reading: 2, Secret: "pw"})
	s.Require().NoError(err)
	s.Nil(v.Get("Secret"))
}

func (s *SerializerSuite) TestReservedKeysInMapsAndFields() {
	v, err := s.engine.Serialize(&Labeled{Meta: map[string]string{"__type__": "label", "owner": "ops"}})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Labeled","Meta":{"___type__":"label","owner":"ops"}}`, mustJSON(v))
	back, err := ParseJSON([]byte(mustJSON(v)))
	s.Require().NoError(err)
	s.True(v.Equal(back))

	v, err = s.engine.Serialize(&Tagged{Mode: "cycle", Class: "x"})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"Tagged","___recursion__":"cycle","___type__":"x"}`, mustJSON(v))
}

func (s *SerializerSuite) TestTypeNamedLikeContainer() {
	type tuple struct{ N int }
	data, err := s.engine.SerializeToJSON(&tuple{N: 1})
	s.Require().NoError(err)
	s.Equal(`{"__type__":"_tuple","N":1}`, string(data))

	_, err = s.engine.DeserializeFromJSON(data)
	s.ErrorIs(err, merr.ErrUnknownType)
	s.NotErrorIs(err, merr.ErrMalformedContainer)
	s.Equal("tuple", merr.TypeName(err))
}

func (s *SerializerSuite) TestUnsortedMapKeepsAllKeys() {
	engine := newTestEngine(WithSortMapKeys(false))
	v, err := engine.Serialize(map[string]int{"a": 1, "b": 2, "c": 3})
	s.Require().NoError(err)
	s.Equal(3, v.Len())
	s.True(v.Get("b").Equal(Int(2)))
}

func (s *SerializerSuite) TestConcurrentSerialize() {
	n := &Node{Name: "a"}
	n.Next = n
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			v, err := s.engine.Serialize(n)
			if err == nil && v.Get("Next").Kind() != KindMarker {
				err = errors.New("expect marker")
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		s.NoError(<-errs)
	}
}

func TestSerializer(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}
