package adsapi

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownStateCode is returned by StateCode for names outside the table.
const UnknownStateCode = "BR"

type federativeUnit struct {
	code    string
	capital string
}

// Keyed by folded name (see foldRegion). The ads API reports regions as
// e.g. "São Paulo (state)" or "Federal District".
var federativeUnits = map[string]federativeUnit{
	"acre":                {"AC", "Rio Branco"},
	"alagoas":             {"AL", "Maceió"},
	"amapa":               {"AP", "Macapá"},
	"amazonas":            {"AM", "Manaus"},
	"bahia":               {"BA", "Salvador"},
	"ceara":               {"CE", "Fortaleza"},
	"distrito federal":    {"DF", "Brasília"},
	"federal district":    {"DF", "Brasília"},
	"espirito santo":      {"ES", "Vitória"},
	"goias":               {"GO", "Goiânia"},
	"maranhao":            {"MA", "São Luís"},
	"mato grosso":         {"MT", "Cuiabá"},
	"mato grosso do sul":  {"MS", "Campo Grande"},
	"minas gerais":        {"MG", "Belo Horizonte"},
	"para":                {"PA", "Belém"},
	"paraiba":             {"PB", "João Pessoa"},
	"parana":              {"PR", "Curitiba"},
	"pernambuco":          {"PE", "Recife"},
	"piaui":               {"PI", "Teresina"},
	"rio de janeiro":      {"RJ", "Rio de Janeiro"},
	"rio grande do norte": {"RN", "Natal"},
	"rio grande do sul":   {"RS", "Porto Alegre"},
	"rondonia":            {"RO", "Porto Velho"},
	"roraima":             {"RR", "Boa Vista"},
	"santa catarina":      {"SC", "Florianópolis"},
	"sao paulo":           {"SP", "São Paulo"},
	"sergipe":             {"SE", "Aracaju"},
	"tocantins":           {"TO", "Palmas"},
}

func foldRegion(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, "(state)")
	name = strings.TrimSuffix(name, "(estado)")
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// PrincipalCity maps a region name to its capital; unmapped names pass
// through unchanged.
func PrincipalCity(region string) string {
	if u, ok := federativeUnits[foldRegion(region)]; ok {
		return u.capital
	}
	return region
}

// StateCode maps a region name to its two-letter code.
func StateCode(region string) string {
	if u, ok := federativeUnits[foldRegion(region)]; ok {
		return u.code
	}
	return UnknownStateCode
}
