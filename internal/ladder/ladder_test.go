package ladder

import "testing"

type orderModule struct {
	name  string
	order *[]string
}

func (m *orderModule) Name() string { return m.name }
func (m *orderModule) Execute(ctx *Context) error {
	*m.order = append(*m.order, m.name)
	return nil
}

type loadUnloadModule struct {
	orderModule
	loaded   bool
	unloaded bool
}

func (m *loadUnloadModule) OnLoad() error {
	m.loaded = true
	return nil
}

func (m *loadUnloadModule) OnUnload() {
	m.unloaded = true
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	var order []string
	r := NewRegistry()
	r.Register(&orderModule{name: "a", order: &order})
	r.Register(&orderModule{name: "b", order: &order})
	r.Register(&orderModule{name: "c", order: &order})

	for _, m := range r.Modules() {
		m.Execute(&Context{})
	}

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestRegisterCallsOnLoad(t *testing.T) {
	var order []string
	m := &loadUnloadModule{orderModule: orderModule{name: "lu", order: &order}}
	r := NewRegistry()
	if err := r.Register(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.loaded {
		t.Fatal("expected OnLoad to be called on Register")
	}
}

func TestUnloadCallsOnUnloadInOrder(t *testing.T) {
	var order []string
	m1 := &loadUnloadModule{orderModule: orderModule{name: "a", order: &order}}
	m2 := &loadUnloadModule{orderModule: orderModule{name: "b", order: &order}}
	r := NewRegistry()
	r.Register(m1)
	r.Register(m2)

	r.Unload()

	if !m1.unloaded || !m2.unloaded {
		t.Fatal("expected both modules to be unloaded")
	}
}

func TestModuleWithoutOptionalCapabilitiesIsFine(t *testing.T) {
	var order []string
	r := NewRegistry()
	if err := r.Register(&orderModule{name: "plain", order: &order}); err != nil {
		t.Fatalf("unexpected error registering a module without Loader/Unloader: %v", err)
	}
	r.Unload()
}
