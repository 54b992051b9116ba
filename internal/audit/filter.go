package audit

import (
	"sort"
	"strings"

	"github.com/Additional-Code/tally/internal/entity"
	"github.com/Additional-Code/tally/pkg/errorbank"
)

// Field names a device attribute the operator can filter the working set on.
type Field string

const (
	FieldWarehouse    Field = "warehouse"
	FieldAssetType    Field = "asset_type"
	FieldModel        Field = "model"
	FieldAssetCheck   Field = "asset_check"
	FieldMaterialType Field = "material_type"
)

var accessors = map[Field]func(entity.Device) string{
	FieldWarehouse:    func(d entity.Device) string { return d.Warehouse },
	FieldAssetType:    func(d entity.Device) string { return d.AssetType },
	FieldModel:        func(d entity.Device) string { return d.Model },
	FieldAssetCheck:   func(d entity.Device) string { return string(d.AssetCheck.Effective()) },
	FieldMaterialType: func(d entity.Device) string { return string(d.MaterialType) },
}

// Fields lists the filterable fields in name order.
func Fields() []Field {
	out := make([]Field, 0, len(accessors))
	for f := range accessors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseField resolves a filter name.
func ParseField(name string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := accessors[f]; !ok {
		return "", errorbank.BadRequest("unknown filter field", errorbank.WithDetail("field", name))
	}
	return f, nil
}

// Filter selects devices by field values. Values of one field are OR-ed,
// fields are AND-ed, and an empty Filter selects everything.
type Filter map[Field][]string

// ParseFilter builds a Filter from raw name/value pairs, dropping blank values.
func ParseFilter(raw map[string][]string) (Filter, error) {
	f := make(Filter, len(raw))
	for name, values := range raw {
		field, err := ParseField(name)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					f[field] = append(f[field], part)
				}
			}
		}
	}
	return f, nil
}

// Matches reports whether d passes every field selection in f.
func (f Filter) Matches(d entity.Device) bool {
	for field, values := range f {
		if len(values) == 0 {
			continue
		}
		get, ok := accessors[field]
		if !ok {
			return false
		}
		if !anyEqualFold(values, get(d)) {
			return false
		}
	}
	return true
}

// Apply returns the devices that match f, in input order.
func (f Filter) Apply(devices []entity.Device) []entity.Device {
	out := make([]entity.Device, 0, len(devices))
	for _, d := range devices {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

func anyEqualFold(values []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), v) {
			return true
		}
	}
	return false
}
