package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// typeDef mirrors one entry of the interface definition file:
//
//	{"name": "BookFacilityReq", "fields": [{"facilityName": "str"}, {"timeSlot": "str"}]}
//
// Each field is a single-key object so that the list keeps the positional order.
type typeDef struct {
	Name   string              `json:"name"`
	Fields []map[string]string `json:"fields"`
}

// serviceDef mirrors one entry of the services definition file.
type serviceDef struct {
	ID       uint16 `json:"id"`
	Name     string `json:"name"`
	Request  string `json:"request"`
	Response string `json:"response"`
}

// Load reads the interface and services definition files and builds a Registry.
func Load(interfacePath, servicesPath string) (*Registry, error) {
	iface, err := os.ReadFile(interfacePath)
	if err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", interfacePath, err)
	}
	services, err := os.ReadFile(servicesPath)
	if err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", servicesPath, err)
	}
	return Parse(iface, services)
}

// Parse builds a Registry from the raw JSON of both definition files.
func Parse(interfaceJSON, servicesJSON []byte) (*Registry, error) {
	var defs []typeDef
	if err := json.Unmarshal(interfaceJSON, &defs); err != nil {
		return nil, fmt.Errorf("schema parse failed (interface): %w", err)
	}
	var svcDefs []serviceDef
	if err := json.Unmarshal(servicesJSON, &svcDefs); err != nil {
		return nil, fmt.Errorf("schema parse failed (services): %w", err)
	}

	types := make([]Type, 0, len(defs))
	for _, d := range defs {
		t := Type{Name: d.Name, Fields: make([]Field, 0, len(d.Fields))}
		for i, f := range d.Fields {
			if len(f) != 1 {
				return nil, fmt.Errorf("schema: type %s field[%d]: expected exactly one name/type pair, got %d", d.Name, i, len(f))
			}
			for name, raw := range f {
				ft, err := ParseFieldType(raw)
				if err != nil {
					return nil, fmt.Errorf("schema: type %s field %s: %w", d.Name, name, err)
				}
				t.Fields = append(t.Fields, Field{Name: name, Type: ft})
			}
		}
		types = append(types, t)
	}

	services := make([]Service, 0, len(svcDefs))
	for _, d := range svcDefs {
		services = append(services, Service(d))
	}
	return NewRegistry(types, services)
}
