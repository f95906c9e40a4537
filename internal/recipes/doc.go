// Package recipes loads and validates the YAML recipe library.
//
// A recipe is a named sequence of cook stages (bulb setpoint, heating
// elements, fan, steam, timer). The library is read from a single YAML
// file and can be reloaded at runtime; a broken edit keeps the previous
// set in place.
//
// Validation enforces the hardware limits: wet bulb 25-100°C, dry bulb
// 25-250°C (reduced when only the bottom element heats, with a lower
// ceiling on first-generation ovens), steam 0-100%, fan 0-100%, rack
// positions 1-7, and at least one but never all three heating elements.
//
// CookStages converts a validated recipe to the stage payloads of a
// start-cook command.
package recipes
