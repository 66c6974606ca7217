// Package content converts document text between the persisted line-ending
// convention and the canonical form used by the editing surface, and handles
// transport encoding, validation and naming of binary assets.
package content
