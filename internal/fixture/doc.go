// Package fixture declares the custom-path fixture: three toy components
// and the pipeline that wires them together to exercise output path
// overrides.
//
// Two behaviors are kept exactly as declared rather than fixed:
//
//   - validate_custom_path compares the artifact path to exp_path by
//     identity (same backing string), not by value. Equal strings that were
//     allocated separately fail the check.
//   - the pipeline passes the expected path as path= while the component
//     declares exp_path. Compilation reports this as binding diagnostics;
//     a lenient run binds exp_path to "" and drops path.
package fixture
