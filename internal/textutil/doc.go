// Package textutil provides filename and token sanitizing shared by the
// upload handler, the history store and report export.
//
// Uploaded files are written into the work directory under a "temp_" prefix
// so a stray file left behind by a crash is easy to spot and remove.
package textutil
