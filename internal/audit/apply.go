package audit

import "github.com/Additional-Code/tally/internal/entity"

// ApplyCleared returns a copy of devices with the asset check reset for the
// ids the store confirmed. Every other device keeps its previous flag.
func ApplyCleared(devices []entity.Device, res ClearResult) []entity.Device {
	updated := make(map[int64]struct{}, len(res.Updated))
	for _, id := range res.Updated {
		updated[id] = struct{}{}
	}
	out := make([]entity.Device, len(devices))
	for i, d := range devices {
		if _, ok := updated[d.ID]; ok {
			d.AssetCheck = entity.AssetUnmatched
		}
		out[i] = d
	}
	return out
}

// ApplyScan returns a copy of devices with a persisted scan committed. A scan
// that was not persisted leaves devices unchanged.
func ApplyScan(devices []entity.Device, res ScanResult) []entity.Device {
	out := append([]entity.Device(nil), devices...)
	if !res.Persisted || res.Device == nil {
		return out
	}
	check, ok := res.Outcome.AssetCheck()
	if !ok {
		return out
	}
	for i := range out {
		if out[i].ID == res.Device.ID {
			out[i].AssetCheck = check
		}
	}
	return out
}

// MatchedIDs lists devices in the view whose audit flag is set to anything
// other than Unmatched.
func MatchedIDs(devices []entity.Device) []int64 {
	var out []int64
	for _, d := range devices {
		if d.AssetCheck.Effective() != entity.AssetUnmatched {
			out = append(out, d.ID)
		}
	}
	return out
}
