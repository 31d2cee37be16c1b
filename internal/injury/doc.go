// Package injury holds the workplace injury report draft, its flat store
// record, and the mapping between the two.
//
// Forward mapping derives the regulatory fields through package classifier
// and embeds each draft section as a JSON blob; reverse mapping prefers those
// blobs and degrades to a lossy reconstruction from the flat fields when they
// are missing or corrupt.
package injury
