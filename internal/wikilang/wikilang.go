// Package wikilang resolves a human-supplied language name, code, or
// database name against the Wikimedia sitematrix.
package wikilang

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const sitematrixURL = "https://commons.wikimedia.org/w/api.php?format=json&action=sitematrix"

// Language identifies a single-language Wikipedia build target.
type Language struct {
	Name     string
	Code     string
	Database string
}

// Lookup searches the sitematrix. Every Find call fetches the sitematrix
// again; nothing is cached between calls.
type Lookup struct {
	client *http.Client
}

// NewLookup returns a Lookup using http.DefaultClient unless client is
// supplied (tests may inject one pointed at a local httptest.Server).
func NewLookup(client *http.Client) *Lookup {
	if client == nil {
		client = http.DefaultClient
	}
	return &Lookup{client: client}
}

// Find searches the sitematrix by language name, code, or database name
// (case-insensitive), returning only Wikipedia subsites.
func (l *Lookup) Find(ctx context.Context, search string) (Language, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitematrixURL, nil)
	if err != nil {
		return Language{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return Language{}, err
	}
	defer resp.Body.Close()

	var sitematrix struct {
		RawSites map[string]json.RawMessage `json:"sitematrix"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sitematrix); err != nil {
		return Language{}, err
	}

	for key, rawSite := range sitematrix.RawSites {
		if key == "specials" || key == "count" {
			continue
		}

		var site struct {
			Code     string `json:"code"`
			Name     string `json:"name"`
			Subsites []struct {
				URL    string `json:"url"`
				Dbname string `json:"dbname"`
			} `json:"site"`
		}
		if err := json.Unmarshal(rawSite, &site); err != nil {
			return Language{}, err
		}

		for _, subsite := range site.Subsites {
			if !strings.Contains(subsite.URL, "wikipedia.org") {
				continue
			}
			lang := Language{
				Name:     title(site.Name),
				Code:     site.Code,
				Database: subsite.Dbname,
			}
			if strings.EqualFold(search, lang.Name) ||
				strings.EqualFold(search, lang.Code) ||
				strings.EqualFold(search, lang.Database) {
				return lang, nil
			}
		}
	}

	return Language{}, fmt.Errorf("language %q not found", search)
}

// title capitalizes the first letter of each word without depending on the
// deprecated strings.Title.
func title(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == "" {
			continue
		}
		r := []rune(f)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}
