// Package normalisers holds format-specific text extractors. Each
// subpackage turns raw uploaded bytes into ordered page text.
//
// Only PDF is supported; see the pdf subpackage.
package normalisers
