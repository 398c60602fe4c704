// Package coerce turns textual literals into typed values.
//
// Rule authors write executor arguments, property values and event data
// filters as text ("true", "21.5", "ClimateMode.Heat", "(255, 128)").
// Drivers receive state payloads as text too. A Service converts such text
// against a Type descriptor and never fails: anything it cannot parse comes
// back as the original string, and the sink decides what to do with it.
//
// Enum types are registered at start-up by the device packages that own
// them:
//
//	coerce.RegisterEnum("ClimateMode", map[string]any{"Auto": ModeAuto, ...})
//	coerce.Coerce("ClimateMode.Auto", coerce.EnumOf("ClimateMode")) // ModeAuto
package coerce
