// Package mediatypes classifies file extensions into media kinds.
//
// It exists as a dependency-free foundation that can be imported by every
// other package without creating import cycles: the scanner, the change
// watcher and the artifact generators all share the same static extension
// tables, so a path that one component treats as media is media everywhere.
//
// Classification is pure and case-insensitive:
//
//	kind := mediatypes.KindForExt(filepath.Ext(name))
//	if kind == mediatypes.KindOther {
//	    // not a media file, skip it
//	}
package mediatypes
