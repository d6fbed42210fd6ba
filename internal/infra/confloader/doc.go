// Package confloader loads configuration with koanf.
//
// Sources, lowest to highest priority:
//
//  1. Default values already present in the target struct
//  2. YAML configuration file
//  3. Environment variables (JETCONF_<SECTION>_<KEY>)
//  4. Explicit maps, used for command-line overrides and tests
package confloader
