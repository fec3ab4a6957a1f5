package catalog

import (
	"encoding/json"
	"strings"
)

// statusCode is the "statuscode" field of every response. The API sends it
// as a string ("200") on success and sometimes as a number on errors.
type statusCode string

func (s *statusCode) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = statusCode(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = statusCode(n.String())
	return nil
}

type envelope struct {
	StatusCode statusCode `json:"statuscode"`
}

type modResponse struct {
	StatusCode statusCode `json:"statuscode"`
	Mod        *apiMod    `json:"mod"`
}

type apiMod struct {
	ModID    json.Number  `json:"modid"`
	AssetID  json.Number  `json:"assetid"`
	Name     string       `json:"name"`
	Author   string       `json:"author"`
	URLAlias *string      `json:"urlalias"`
	Side     string       `json:"side"`
	Type     string       `json:"type"`
	Tags     []string     `json:"tags"`
	Releases []apiRelease `json:"releases"`
}

type apiRelease struct {
	ReleaseID  json.Number `json:"releaseid"`
	MainFile   string      `json:"mainfile"`
	FileName   fileName    `json:"filename"`
	FileID     json.Number `json:"fileid"`
	Downloads  json.Number `json:"downloads"`
	Tags       []string    `json:"tags"`
	ModIDStr   string      `json:"modidstr"`
	ModVersion string      `json:"modversion"`
	Created    string      `json:"created"`
}

// fileName tolerates the API occasionally sending a number in place of the
// file name; such values are treated as missing.
type fileName string

func (f *fileName) UnmarshalJSON(b []byte) error {
	if strings.HasPrefix(strings.TrimSpace(string(b)), `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = fileName(s)
		return nil
	}
	*f = ""
	return nil
}

type gameVersionsResponse struct {
	StatusCode   statusCode       `json:"statuscode"`
	GameVersions []apiGameVersion `json:"gameversions"`
}

type apiGameVersion struct {
	TagID json.Number `json:"tagid"`
	Name  string      `json:"name"`
	Color string      `json:"color"`
}

type searchResponse struct {
	StatusCode statusCode   `json:"statuscode"`
	Mods       []ModSummary `json:"mods"`
}

// ModSummary is one hit of a mod search.
type ModSummary struct {
	ModID        json.Number `json:"modid"`
	AssetID      json.Number `json:"assetid"`
	Downloads    int         `json:"downloads"`
	Follows      int         `json:"follows"`
	Name         string      `json:"name"`
	Summary      string      `json:"summary"`
	ModIDStrs    []string    `json:"modidstrs"`
	Author       string      `json:"author"`
	URLAlias     string      `json:"urlalias"`
	Side         string      `json:"side"`
	Type         string      `json:"type"`
	Tags         []string    `json:"tags"`
	LastReleased string      `json:"lastreleased"`
}

// PrimaryID returns the string mod id used to fetch the mod, falling back
// to the numeric id.
func (m ModSummary) PrimaryID() string {
	for _, id := range m.ModIDStrs {
		if id != "" {
			return id
		}
	}
	return m.ModID.String()
}
