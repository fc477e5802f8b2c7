// Package analysis post-processes curvature matrices.
//
// The package includes:
//
//   - [Eigen]: sorted, consistently oriented eigen-decomposition of a Hessian
//   - [ProjectToParameters]: maps eigenvectors back to parameter space
//   - [SubspaceEigen]: eigen-decomposition of each diagonal block
//   - [MajorityLogRates]: how the majority distribution moves along the
//     principal direction of each spin's block
//
// # Principal Modes
//
// Eigenvectors of the Hessian are combinations of perturbations ordered by
// how much they change the distribution:
//
//	spec, err := analysis.Eigen(hess, model.N(), analysis.Options{})
//	modes := analysis.ProjectToParameters(dJ, spec.Vectors)
//	// modes.ColView(0) is the parameter change of largest curvature
package analysis
