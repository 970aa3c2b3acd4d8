package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// ReadBatches decodes a command log directory. With no directions given it
// reads both and merges them by time; entries of one direction keep their
// written order.
func ReadBatches(dir string, only ...Direction) ([]BatchEntry, error) {
	if len(only) == 0 {
		only = directions
	}
	var out []BatchEntry
	for _, d := range only {
		prefix, ok := d.filePrefix()
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDirection, d)
		}
		files, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, p := range files {
			if out, err = readFile(p, out); err != nil {
				return nil, err
			}
		}
	}
	if len(only) > 1 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	}
	return out, nil
}

func readFile(path string, out []BatchEntry) ([]BatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return out, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return out, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e BatchEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
