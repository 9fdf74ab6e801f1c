package catalog

import "github.com/roach88/codex/internal/ir"

// majorSpec is one row of the fixed major arcana table.
type majorSpec struct {
	Name     string
	Element  ir.Element
	Planet   string
	Letter   string
	Hz       float64
	Keywords []string
}

// majorArcana is indexed by ordinal 0..21.
var majorArcana = [22]majorSpec{
	{"The Fool", ir.ElementAir, "Uranus", "Aleph", 396, []string{"beginnings", "innocence", "spontaneity", "free_spirit"}},
	{"The Magician", ir.ElementAir, "Mercury", "Beth", 528, []string{"manifestation", "resourcefulness", "power", "inspired_action"}},
	{"The High Priestess", ir.ElementWater, "Moon", "Gimel", 741, []string{"intuition", "sacred_knowledge", "divine_feminine", "subconscious"}},
	{"The Empress", ir.ElementEarth, "Venus", "Daleth", 639, []string{"fertility", "femininity", "beauty", "nature", "abundance"}},
	{"The Emperor", ir.ElementFire, "Aries", "Heh", 417, []string{"authority", "father_figure", "structure", "control"}},
	{"The Hierophant", ir.ElementEarth, "Taurus", "Vav", 852, []string{"spiritual_wisdom", "religious_beliefs", "conformity", "tradition"}},
	{"The Lovers", ir.ElementAir, "Gemini", "Zayin", 639, []string{"love", "harmony", "relationships", "values_alignment"}},
	{"The Chariot", ir.ElementWater, "Cancer", "Cheth", 528, []string{"control", "willpower", "success", "determination"}},
	{"Strength", ir.ElementFire, "Leo", "Teth", 741, []string{"strength", "courage", "persuasion", "influence", "compassion"}},
	{"The Hermit", ir.ElementEarth, "Virgo", "Yod", 852, []string{"soul_searching", "seeking_inner_guidance", "introspection"}},
	{"Wheel of Fortune", ir.ElementFire, "Jupiter", "Kaph", 528, []string{"good_luck", "karma", "life_cycles", "destiny", "turning_point"}},
	{"Justice", ir.ElementAir, "Libra", "Lamed", 741, []string{"justice", "fairness", "truth", "cause_and_effect", "law"}},
	{"The Hanged Man", ir.ElementWater, "Neptune", "Mem", 639, []string{"suspension", "restriction", "letting_go", "sacrifice"}},
	{"Death", ir.ElementWater, "Scorpio", "Nun", 417, []string{"endings", "beginnings", "change", "transformation"}},
	{"Temperance", ir.ElementFire, "Sagittarius", "Samekh", 741, []string{"balance", "moderation", "patience", "purpose"}},
	{"The Devil", ir.ElementEarth, "Capricorn", "Ayin", 396, []string{"shadow_self", "attachment", "addiction", "restriction", "sexuality"}},
	{"The Tower", ir.ElementFire, "Mars", "Peh", 963, []string{"sudden_change", "upheaval", "chaos", "revelation", "awakening"}},
	{"The Star", ir.ElementAir, "Aquarius", "Tzaddi", 852, []string{"hope", "faith", "purpose", "renewal", "spirituality"}},
	{"The Moon", ir.ElementWater, "Pisces", "Qoph", 528, []string{"illusion", "fear", "anxiety", "subconscious", "intuition"}},
	{"The Sun", ir.ElementFire, "Sun", "Resh", 741, []string{"positivity", "fun", "warmth", "success", "vitality"}},
	{"Judgement", ir.ElementFire, "Pluto", "Shin", 963, []string{"judgement", "rebirth", "inner_calling", "absolution"}},
	{"The World", ir.ElementEarth, "Saturn", "Tav", 528, []string{"completion", "integration", "accomplishment", "travel"}},
}

// suitElements maps each suit to its classical element.
var suitElements = map[ir.Suit]ir.Element{
	ir.SuitWands:     ir.ElementFire,
	ir.SuitCups:      ir.ElementWater,
	ir.SuitSwords:    ir.ElementAir,
	ir.SuitPentacles: ir.ElementEarth,
}

// suitKeywords are the thematic keywords shared by every card of a suit.
var suitKeywords = map[ir.Suit][]string{
	ir.SuitWands:     {"will", "creativity", "action"},
	ir.SuitCups:      {"emotion", "relationships", "intuition"},
	ir.SuitSwords:    {"intellect", "conflict", "truth"},
	ir.SuitPentacles: {"material", "work", "abundance"},
}

// rankNames is indexed by rank 1..14; index 0 is unused.
var rankNames = [15]string{"", "ace", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten", "page", "knight", "queen", "king"}
