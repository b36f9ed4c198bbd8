package dict

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/uatdecode/uatd/internal/session"
)

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file JSONFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return FromJSON(file)
}

func EnsureLoaded(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("empty dictionary path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("dictionary path %s is a directory", path)
	}
	return Load(path)
}

// PathFromSession recovers a dictionary path recorded in a session
// manifest, either under the well-known DICT_VERSION-adjacent key or as a
// free-form comment (an operator note like "# dict: /etc/uatd/dict.json").
func PathFromSession(doc *session.Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	candidates := []string{"SESSION\\DICT_PATH", "SESSION\\DICT", "SESSION\\ICD"}
	for _, key := range candidates {
		if val, ok := doc.Get(key); ok {
			trimmed := strings.TrimSpace(val)
			if trimmed != "" {
				return trimmed, true
			}
		}
	}
	for _, comment := range doc.Comments() {
		trimmed := strings.TrimSpace(comment)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimSpace(trimmed[1:])
		}
		lower := strings.ToLower(trimmed)
		prefixes := []string{"dictionary", "dict", "icd"}
		for _, prefix := range prefixes {
			for _, sep := range []string{":", "="} {
				token := prefix + sep
				if strings.HasPrefix(lower, token) {
					value := strings.TrimSpace(trimmed[len(token):])
					value = strings.Trim(value, "\"'")
					if value != "" {
						return value, true
					}
				}
			}
		}
	}
	return "", false
}

// ResolveSessionPath resolves a dictionary path recorded relative to the
// session manifest file that named it.
func ResolveSessionPath(manifestPath, dictPath string) string {
	if dictPath == "" {
		return ""
	}
	if filepath.IsAbs(dictPath) {
		return dictPath
	}
	base := filepath.Dir(manifestPath)
	if base == "" {
		return dictPath
	}
	return filepath.Join(base, dictPath)
}
