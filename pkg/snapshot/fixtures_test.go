package snapshot

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

type Battery struct {
	Charge   float64 `snapshot:"charge"`
	Capacity float64 `snapshot:"capacity"`
	Cells    int
}

type Node struct {
	Name     string
	Next     *Node
	Children []*Node
}

type Pair struct {
	Left  *Battery
	Right *Battery
}

type Thruster struct {
	Name   string
	Thrust float64
	Heat   float64
	Debug  string `snapshot:"-"`
}

func (t *Thruster) SnapshotExclude() []string {
	return []string{"Heat"}
}

type Probe struct {
	Name     string
	Callback func()
	Signal   chan int
}

type Secret struct {
	Value string
}

func (s *Secret) Snapshot() (any, error) {
	return map[string]any{"masked": "***"}, nil
}

type Clock struct {
	Tick    int
	Scratch []int
}

func (c Clock) Snapshot() (any, error) {
	return Clock{Tick: c.Tick}, nil
}

type Flaky struct {
	Level int
}

func (f *Flaky) Snapshot() (any, error) {
	return nil, errors.New("not ready")
}

type Panicky struct {
	Level int
}

func (p *Panicky) Snapshot() (any, error) {
	panic("boom")
}

type Sensor struct {
	Name string
	raw  []float64
}

func (s *Sensor) SnapshotState() ([]Field, error) {
	return []Field{
		{Name: "name", Value: s.Name},
		{Name: "samples", Value: len(s.raw)},
	}, nil
}

func (s *Sensor) SetSnapshotField(name string, value any) error {
	switch name {
	case "name":
		s.Name = value.(string)
		return nil
	case "samples":
		s.raw = make([]float64, value.(int64))
		return nil
	}
	return ErrFieldNotHandled
}

type Cargo struct {
	Tags     typeutil.Set[string]
	Modes    FrozenSet
	Position Tuple
	Grid     [2]int
	Counts   map[string]int
	ByID     map[int]string
	Payload  []byte
	Launched time.Time
	Extra    any
}

type Spacecraft struct {
	Name    string
	Hull    *Hull
	Battery Battery
	Parts   []any
	Meta    map[string]any
}

type Hull struct {
	Mass  float64
	Owner *Spacecraft
}

type Base struct {
	ID int
}

type Derived struct {
	Base
	Label string
}

type Secretive struct {
	Visible int
	hidden  int
}

type Named struct {
	Name string
	Self *Named
}

func (n *Named) String() string {
	return "Named(" + n.Name + ")"
}

type Holder struct {
	Item interface{ String() string }
}

type Labeled struct {
	Meta map[string]string
}

type Tagged struct {
	Mode  string `snapshot:"__recursion__"`
	Class string `snapshot:"__type__"`
}

// Gauge 的 Snapshot 返回自身的值拷贝，排除字段由指针接收者给出。
type Gauge struct {
	Reading float64
	Secret  string
}

func (g *Gauge) Snapshot() (any, error) {
	return *g, nil
}

func (g *Gauge) SnapshotExclude() []string {
	return []string{"Secret"}
}

func newTestEngine(opts ...Option) *Engine {
	e := NewEngine(opts...)
	r := e.Registry()
	for _, p := range []any{
		Battery{}, Node{}, Pair{}, Probe{}, Secret{}, Clock{}, Flaky{}, Panicky{},
		Sensor{}, Cargo{}, Spacecraft{}, Hull{}, Derived{}, Secretive{}, Named{}, Holder{},
		Labeled{}, Tagged{}, Gauge{},
	} {
		r.MustRegisterType(p)
	}
	r.MustRegisterType(Thruster{}, WithExclude("Thrust"))
	return e
}

func mustJSON(v *Value) string {
	data, err := v.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return string(data)
}

func chain(n int) *Node {
	head := &Node{Name: "n0"}
	cur := head
	for i := 1; i < n; i++ {
		cur.Next = &Node{Name: "n"}
		cur = cur.Next
	}
	return head
}
