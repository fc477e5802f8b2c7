// Package viz renders analysis results for the terminal: flag summaries,
// eigen spectra drawn with asciigraph, matrices as heat rows and the run
// listing. Colors come from the active [Theme].
package viz
