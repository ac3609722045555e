// Package store holds the settings mock's shared key-value map.
//
// Keys keep insertion order, so Store.MarshalJSON renders the defaults as
//
//	{"read_samples":4,"speed":10,"gain":1,"calibration_factor":-0.015270548,"target_dose_single":9.5,"target_dose_double":18}
//
// and keys added later by set or batch are appended. A Store is safe for
// concurrent use.
package store
