package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Service *jsoncService `json:"service"`
	Store   *jsoncStore   `json:"store"`
	Sync    *jsoncSync    `json:"sync"`
	Poll    *jsoncPoll    `json:"poll"`
	UI      *jsoncUI      `json:"ui"`
	EnvFile *string       `json:"env_file"`
	Log     *jsoncLog     `json:"log"`
	Debug   *jsoncDebug   `json:"debug"`
}

type jsoncService struct {
	URL        *string `json:"url"`
	Listen     *string `json:"listen"`
	GRPCHealth *string `json:"grpc_health"`
	TimeoutMS  *int    `json:"timeout_ms"`
}

type jsoncStore struct {
	Path *string `json:"path"`
}

type jsoncSync struct {
	DebounceMS *int `json:"debounce_ms"`
}

type jsoncPoll struct {
	StatusMS  *int `json:"status_ms"`
	DevicesMS *int `json:"devices_ms"`
}

type jsoncUI struct {
	Language        *string `json:"language"`
	Notify          *string `json:"notify"`
	NoticeTimeoutMS *int    `json:"notice_timeout_ms"`
	DesktopAppName  *string `json:"desktop_app_name"`
}

type jsoncLog struct {
	MaxSizeMB  *int    `json:"max_size_mb"`
	MaxBackups *int    `json:"max_backups"`
	Level      *string `json:"level"`
}

type jsoncDebug struct {
	GRPCDump *bool `json:"grpc_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if s := payload.Service; s != nil {
		setString(&cfg.Service.URL, s.URL)
		setString(&cfg.Service.Listen, s.Listen)
		setString(&cfg.Service.GRPCHealth, s.GRPCHealth)
		setInt(&cfg.Service.TimeoutMS, s.TimeoutMS)
	}
	if payload.Store != nil {
		setString(&cfg.Store.Path, payload.Store.Path)
	}
	if payload.Sync != nil {
		setInt(&cfg.Sync.DebounceMS, payload.Sync.DebounceMS)
	}
	if p := payload.Poll; p != nil {
		setInt(&cfg.Poll.StatusMS, p.StatusMS)
		setInt(&cfg.Poll.DevicesMS, p.DevicesMS)
	}
	if u := payload.UI; u != nil {
		setString(&cfg.UI.Language, u.Language)
		setString(&cfg.UI.Notify, u.Notify)
		cfg.UI.Notify = strings.ToLower(cfg.UI.Notify)
		setInt(&cfg.UI.NoticeTimeoutMS, u.NoticeTimeoutMS)
		setString(&cfg.UI.DesktopAppName, u.DesktopAppName)
	}
	setString(&cfg.EnvFile, payload.EnvFile)
	if l := payload.Log; l != nil {
		setInt(&cfg.Log.MaxSizeMB, l.MaxSizeMB)
		setInt(&cfg.Log.MaxBackups, l.MaxBackups)
		setString(&cfg.Log.Level, l.Level)
		cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	}
	if payload.Debug != nil && payload.Debug.GRPCDump != nil {
		cfg.Debug.EnableGRPCDump = *payload.Debug.GRPCDump
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
