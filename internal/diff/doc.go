// Package diff computes changesets between consecutive funding snapshots.
//
// FieldDiffer compares entries by symbol and quotes by exchange name, emitting only
// what is new or changed. HashDiffer is a coarser whole-document detector that emits
// the full snapshot whenever anything changed. Both satisfy domain.Differ.
package diff
