package printer

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

func TestRegistry(t *testing.T) {
	identities := []models.PrinterIdentity{
		{Name: "zeta", Host: "10.0.0.3", ControlPort: 8899},
		{Name: "alpha", Host: "10.0.0.1", ControlPort: 8899},
		{Name: "mid", Host: "10.0.0.2", ControlPort: 8899},
	}
	reg, err := NewRegistry(identities, Options{})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	if got, want := reg.List(), []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}

	p, err := reg.Resolve("alpha")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Identity().Host != "10.0.0.1" {
		t.Errorf("Resolve() host = %s", p.Identity().Host)
	}

	_, err = reg.Resolve("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "missing" {
		t.Errorf("Resolve(missing) error = %#v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]models.PrinterIdentity{{Name: "a"}, {Name: "a"}}, Options{})
	if err == nil {
		t.Fatal("NewRegistry() with duplicate names succeeded")
	}
}

func TestRegistryListIsACopy(t *testing.T) {
	reg, _ := NewRegistry([]models.PrinterIdentity{{Name: "a"}}, Options{})
	names := reg.List()
	names[0] = "changed"
	if reg.List()[0] != "a" {
		t.Error("List() exposes internal state")
	}
}
