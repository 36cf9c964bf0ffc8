package song

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"
)

var ErrDuplicateSong = errors.New("duplicate song name")

// UnmarshalYAML decodes a kind from its name so unknown kinds fail at load time
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return fault.Wrap(err, fmsg.With(fmt.Sprintf("line %d", value.Line)))
	}
	*k = parsed
	return nil
}

func (k Kind) MarshalYAML() (any, error) {
	if !k.Valid() {
		return nil, fault.Wrap(ErrUnknownKind, ftag.With(ftag.InvalidArgument))
	}
	return k.String(), nil
}

// keyAliases maps accepted spellings onto the yaml tags of Song and Pattern,
// after the first letter has been lowered.
var keyAliases = map[string]string{
	"occoursOn": "occursOn",
}

func canonicalKey(k string) string {
	r, size := utf8.DecodeRuneInString(k)
	if r == utf8.RuneError {
		return k
	}
	k = string(unicode.ToLower(r)) + k[size:]
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// canonicalizeKeys rewrites every mapping key in n to its canonical spelling
// and reports whether anything changed.
func canonicalizeKeys(n *yaml.Node) bool {
	changed := false
	if n.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if k := canonicalKey(key.Value); k != key.Value {
				key.Value = k
				changed = true
			}
		}
	}
	for _, c := range n.Content {
		if canonicalizeKeys(c) {
			changed = true
		}
	}
	return changed
}

// decode reads one song document. Keys may be camelCase or PascalCase
// (Tempo, Instruments, HitsPerBar, OccoursOn...); anything else that does
// not name a field is rejected.
func decode(r io.Reader, what string) (*Song, error) {
	wrap := func(err error) error {
		return fault.Wrap(err, fmsg.With("decode "+what), ftag.With(ftag.InvalidArgument))
	}

	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("read "+what))
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, wrap(err)
	}
	if canonicalizeKeys(&doc) {
		if src, err = yaml.Marshal(&doc); err != nil {
			return nil, wrap(err)
		}
	}

	var s Song
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, wrap(err)
	}
	return &s, nil
}

// Load decodes and validates one song
func Load(r io.Reader) (*Song, error) {
	s, err := decode(r, "song")
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads a song file. The song name defaults to the file name without
// extension and a relative backing path is resolved against the file's directory.
func LoadFile(path string) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open song"))
	}
	defer f.Close()

	s, err := decode(f, path)
	if err != nil {
		return nil, err
	}
	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if s.Backing != "" && !filepath.IsAbs(s.Backing) {
		s.Backing = filepath.Join(filepath.Dir(path), s.Backing)
	}
	if err := s.Validate(); err != nil {
		return nil, fault.Wrap(err, fmsg.With(path))
	}
	return s, nil
}

// LoadDir loads every .yaml/.yml file in dir, in file name order
func LoadDir(dir string) ([]*Song, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("read songs dir"))
	}

	var songs []*Song
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		s, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Name]; ok {
			return nil, fault.Wrap(ErrDuplicateSong,
				fmsg.With(fmt.Sprintf("%s in %s and %s", s.Name, prev, path)),
				ftag.With(ftag.AlreadyExists))
		}
		seen[s.Name] = path
		songs = append(songs, s)
	}
	return songs, nil
}
