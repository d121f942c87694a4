// Package server contains misc server utilities.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ReplyWithFile replies to the client request by serving the file fn from
// the folder fldr.  fn may not climb out of fldr.
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	if fn == "" || strings.Contains(filepath.ToSlash(fn), "..") {
		http.Error(w, fmt.Sprintf("bad file name %q", fn), http.StatusBadRequest)
		return
	}
	filePath, err := filepath.Abs(filepath.Join(fldr, fn))
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s %s", fldr, fn, err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", filePath)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fstr := fmt.Sprintf("error retrieving source file stats %s", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	// read some stuff to set the headers appropriately
	http.ServeContent(w, r, filepath.Base(fn), stat.ModTime(), f)
}
