package params

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/banshee-data/esa.report/internal/monitoring"
)

// Numbers may use "pt" for the decimal point (pt4 = 0.4, 1pt5 = 1.5). A
// minus sign always binds to the number that follows it.
const (
	unum = `(?:\d+(?:(?:\.|pt)\d+)?|pt\d+)`
	snum = `-?` + unum
)

var (
	tsDashRe    = regexp.MustCompile(`(\d{6})-(\d{6})$`)
	tsCompactRe = regexp.MustCompile(`(\d{6})(\d{6})$`)

	beamPrefixRe   = regexp.MustCompile(`(?i)beam-`)
	beamEnergyRe   = regexp.MustCompile(`(?i)beam[-_\s]*(` + unum + `)\s*(k?ev)`)
	bareEnergyRe   = regexp.MustCompile(`(?i)(` + unum + `)\s*(k?ev)`)
	esaDashRe      = regexp.MustCompile(`(?i)esa-(` + snum + `)v?`)
	esaSpacedRe    = regexp.MustCompile(`(?i)esa[\s_]+(` + snum + `)\s*v`)
	innerPrefixRe  = regexp.MustCompile(`(?i)inner-`)
	innerRe        = regexp.MustCompile(`(?i)inner-(` + snum + `)(?:to(` + snum + `))?`)
	horPrefixRe    = regexp.MustCompile(`(?i)(?:^|[^a-z])hor`)
	horRe          = regexp.MustCompile(`(?i)(?:^|[^a-z])hor(` + snum + `)`)
	focusPrefixRe  = regexp.MustCompile(`(?i)focus-`)
	focusRe        = regexp.MustCompile(`(?i)focus-x-(-?[a-z0-9.]+?)-y-(-?[a-z0-9.]+)`)
	offsetPrefixRe = regexp.MustCompile(`(?i)offset-`)
	offsetRe       = regexp.MustCompile(`(?i)offset-x-(-?[a-z0-9.]+?)[-_\s]y-(-?[a-z0-9.]+)`)
	wavePrefixRe   = regexp.MustCompile(`(?i)wave-`)
	waveRe         = regexp.MustCompile(`(?i)wave-([a-z][a-z0-9]*)`)
	mcpPrefixRe    = regexp.MustCompile(`(?i)mcp-`)
	mcpRe          = regexp.MustCompile(`(?i)mcp-([a-z0-9]+(?:-[a-z0-9]+)*)`)
	leadingNumRe   = regexp.MustCompile(`^\d+(?:\.\d+)?`)
	darkRe         = regexp.MustCompile(`(?i)(?:^|[^a-z])dark(?:[^a-z]|$)`)
	rampRe         = regexp.MustCompile(`(?i)ramp[\s_-]*up[\s_-]*(\d*)`)
	rotatingRe     = regexp.MustCompile(`(?i)rotating[\s_-]*(\d*)`)
	plainNumberRe  = regexp.MustCompile(`^(?:\d+(?:\.\d+)?|\.\d+)$`)
)

// Parse extracts the parameters encoded in the base name of path. It never
// fails: parameters that are missing or unreadable are left nil, and a
// present-but-unreadable prefix is noted in Record.Unparsed.
func Parse(path string) Record {
	name := filepath.Base(path)
	rec := Record{SourcePath: path}

	var stem string
	rec.FileType, stem = splitExtension(name)
	stem, rec.Timestamp = extractTimestamp(stem)

	p := &parser{name: name, s: stem, rec: &rec}
	p.beamEnergy()
	p.esaVoltage()
	p.innerAngle()
	p.horizontal()
	p.focusOffset()
	p.waveform()
	p.mcp()
	p.classify()
	return rec
}

type parser struct {
	name string
	s    string
	rec  *Record
}

func (p *parser) unparsed(f Field, token string) {
	p.rec.Unparsed = append(p.rec.Unparsed, f)
	monitoring.Debugf("params: %s: could not read %s from %q", p.name, f, token)
}

type energyToken struct {
	eV       float64
	prefixed bool
	scaled   bool
}

// outranks orders competing energy tokens: a Beam-prefixed token wins, then
// a keV token, then the larger value.
func (t energyToken) outranks(o energyToken) bool {
	if t.prefixed != o.prefixed {
		return t.prefixed
	}
	if t.scaled != o.scaled {
		return t.scaled
	}
	return t.eV > o.eV
}

func (p *parser) beamEnergy() {
	var best *energyToken
	consider := func(m []string, prefixed bool) {
		v, ok := parseNumber(m[1])
		if !ok {
			return
		}
		tok := energyToken{eV: v, prefixed: prefixed}
		if strings.EqualFold(m[2], "kev") {
			tok.eV *= 1000
			tok.scaled = true
		}
		if best == nil || tok.outranks(*best) {
			best = &tok
		}
	}
	for _, m := range findBounded(beamEnergyRe, p.s, isLetter, isLetter) {
		consider(m, true)
	}
	for _, m := range findBounded(bareEnergyRe, p.s, isNumberChar, isLetter) {
		consider(m, false)
	}
	if best != nil {
		p.rec.BeamEnergy = &best.eV
		return
	}
	if loc := beamPrefixRe.FindStringIndex(p.s); loc != nil {
		p.unparsed(BeamEnergy, tokenAt(p.s, loc[0]))
	}
}

func (p *parser) esaVoltage() {
	for _, re := range []*regexp.Regexp{esaDashRe, esaSpacedRe} {
		for _, m := range findBounded(re, p.s, isLetter, isAlnum) {
			if v, ok := parseNumber(m[1]); ok {
				p.rec.ESAVoltage = &v
				return
			}
		}
	}
}

func (p *parser) innerAngle() {
	m := innerRe.FindStringSubmatch(p.s)
	if m == nil {
		if loc := innerPrefixRe.FindStringIndex(p.s); loc != nil {
			p.unparsed(InnerAngle, tokenAt(p.s, loc[0]))
		}
		return
	}
	a, ok := parseNumber(m[1])
	if !ok {
		p.unparsed(InnerAngle, m[0])
		return
	}
	if m[2] == "" {
		p.rec.InnerAngle = &a
		return
	}
	b, ok := parseNumber(m[2])
	if !ok {
		p.unparsed(InnerAngle, m[0])
		return
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	mid := (a + b) / 2
	p.rec.InnerAngle = &mid
	p.rec.InnerAngleRange = &AngleRange{Min: lo, Max: hi}
}

func (p *parser) horizontal() {
	if m := horRe.FindStringSubmatch(p.s); m != nil {
		if v, ok := parseNumber(m[1]); ok {
			p.rec.Horizontal = &v
			return
		}
	}
	if loc := horPrefixRe.FindStringIndex(p.s); loc != nil {
		p.unparsed(Horizontal, tokenAt(p.s, loc[0]))
	}
}

func (p *parser) focusOffset() {
	pairs := []struct {
		prefix, re *regexp.Regexp
		x, y       Field
		dx, dy     **float64
	}{
		{focusPrefixRe, focusRe, FocusX, FocusY, &p.rec.FocusX, &p.rec.FocusY},
		{offsetPrefixRe, offsetRe, OffsetX, OffsetY, &p.rec.OffsetX, &p.rec.OffsetY},
	}
	for _, pr := range pairs {
		loc := pr.prefix.FindStringIndex(p.s)
		if loc == nil {
			continue
		}
		m := pr.re.FindStringSubmatch(p.s)
		if m == nil {
			tok := tokenAt(p.s, loc[0])
			p.unparsed(pr.x, tok)
			p.unparsed(pr.y, tok)
			continue
		}
		if v, ok := parseNumber(m[1]); ok {
			*pr.dx = &v
		} else {
			p.unparsed(pr.x, m[0])
		}
		if v, ok := parseNumber(m[2]); ok {
			*pr.dy = &v
		} else {
			p.unparsed(pr.y, m[0])
		}
	}
}

func (p *parser) waveform() {
	if m := waveRe.FindStringSubmatch(p.s); m != nil {
		w := m[1]
		p.rec.Waveform = &w
		return
	}
	if loc := wavePrefixRe.FindStringIndex(p.s); loc != nil {
		p.unparsed(Waveform, tokenAt(p.s, loc[0]))
	}
}

func (p *parser) mcp() {
	m := mcpRe.FindStringSubmatch(p.s)
	if m == nil {
		if loc := mcpPrefixRe.FindStringIndex(p.s); loc != nil {
			p.unparsed(MCPSetting, tokenAt(p.s, loc[0]))
		}
		return
	}
	setting := m[1]
	p.rec.MCPSetting = &setting
	if n := leadingNumRe.FindString(setting); n != "" {
		if v, err := strconv.ParseFloat(n, 64); err == nil {
			p.rec.MCPVoltage = &v
		}
	}
}

func (p *parser) classify() {
	rec := p.rec
	switch {
	case darkRe.MatchString(p.s):
		rec.TestType = TestDark
	case rampRe.MatchString(p.s):
		rec.TestType = TestRampUp
		rec.Sequence = rampRe.FindStringSubmatch(p.s)[1]
	case rotatingRe.MatchString(p.s):
		rec.TestType = TestRotating
		rec.Sequence = rotatingRe.FindStringSubmatch(p.s)[1]
	case rec.BeamEnergy != nil && rec.ESAVoltage != nil:
		rec.TestType = TestVoltageSweep
	case rec.BeamEnergy != nil:
		rec.TestType = TestEnergy
	default:
		rec.TestType = TestUnknown
	}
}

// splitExtension returns the payload type and the name without extension.
// Double extensions such as ".fits.map" count as the outer format.
func splitExtension(name string) (FileType, string) {
	lower := strings.ToLower(name)
	for _, e := range []struct {
		suffix string
		typ    FileType
	}{
		{".fits.map", FileTypeMap},
		{".fits.phd", FileTypePHD},
		{".fits", FileTypeFITS},
		{".map", FileTypeMap},
		{".phd", FileTypePHD},
	} {
		if strings.HasSuffix(lower, e.suffix) {
			return e.typ, name[:len(name)-len(e.suffix)]
		}
	}
	ext := filepath.Ext(name)
	if ext != "" && strings.IndexFunc(ext[1:], func(r rune) bool { return !unicode.IsLetter(r) }) < 0 {
		name = strings.TrimSuffix(name, ext)
	}
	return FileTypeUnknown, name
}

// extractTimestamp removes a trailing YYMMDD-HHMMSS or YYMMDDHHMMSS stamp.
// A stamp that is not a valid calendar time is left in place.
func extractTimestamp(stem string) (string, *time.Time) {
	for _, re := range []*regexp.Regexp{tsDashRe, tsCompactRe} {
		loc := re.FindStringSubmatchIndex(stem)
		if loc == nil {
			continue
		}
		date, clock := stem[loc[2]:loc[3]], stem[loc[4]:loc[5]]
		t, err := time.Parse("060102150405", date+clock)
		if err != nil {
			continue
		}
		return strings.TrimRight(stem[:loc[0]], "_- "), &t
	}
	return stem, nil
}

// parseNumber reads a signed decimal that may use "pt" as the decimal point.
func parseNumber(tok string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(tok))
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.Replace(s, "pt", ".", 1)
	if !plainNumberRe.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// findBounded returns the submatches of re in s whose preceding byte fails
// badBefore and whose following byte fails badAfter.
func findBounded(re *regexp.Regexp, s string, badBefore, badAfter func(byte) bool) [][]string {
	var out [][]string
	for _, loc := range re.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > 0 && badBefore(s[loc[0]-1]) {
			continue
		}
		if loc[1] < len(s) && badAfter(s[loc[1]]) {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		out = append(out, m)
	}
	return out
}

// tokenAt returns the run of non-underscore, non-space bytes starting at i.
func tokenAt(s string, i int) string {
	end := strings.IndexAny(s[i:], "_ ")
	if end < 0 {
		return s[i:]
	}
	return s[i : i+end]
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isAlnum(b byte) bool {
	return isLetter(b) || (b >= '0' && b <= '9')
}

func isNumberChar(b byte) bool {
	return isAlnum(b) || b == '.'
}

// FileTypeOf returns the payload format implied by the extension of name.
func FileTypeOf(name string) FileType {
	t, _ := splitExtension(filepath.Base(name))
	return t
}
