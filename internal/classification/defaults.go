package classification

import "github.com/Veraticus/tierkeeper/internal/model"

// DefaultTableConfig returns the built-in brand, grade and keyword tables.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		BrandScores:     defaultBrandScores(),
		BrandTierScores: map[string]int{"LUXURY": 30, "PREMIUM": 20, "MID": 10, "BASIC": 4},
		GradeScores: map[string]int{
			"V": 25, "V급": 25,
			"S": 19, "S급": 19,
			"A": 12, "A급": 12,
			"B": 5, "B급": 5,
		},
		Keywords: DefaultKeywords(),
		AICategories: []model.Tier{
			model.TierMilitaryArchive,
			model.TierWorkwearArchive,
			model.TierOutdoorArchive,
			model.TierJapaneseArchive,
			model.TierHeritageEurope,
			model.TierBritishArchive,
		},
	}
}

// DefaultTables returns Tables built from DefaultTableConfig.
func DefaultTables() *Tables {
	t, err := NewTables(DefaultTableConfig())
	if err != nil {
		panic(err)
	}
	return t
}

func defaultBrandScores() map[string]int {
	scores := make(map[string]int)
	for score, brands := range map[int][]string{
		35: {
			"BURBERRY", "BARBOUR", "STONE ISLAND", "CP COMPANY",
			"PATAGONIA", "ARC'TERYX", "ARCTERYX",
			"COMME DES GARCONS", "ISSEY MIYAKE", "YOHJI YAMAMOTO",
			"POLO RALPH LAUREN", "RALPH LAUREN", "RRL",
			"RED WING", "LEVI'S", "LEVIS", "SCHOTT",
			"THE REAL MCCOY'S", "REAL MCCOYS", "BUZZ RICKSON",
			"FILSON", "NIGEL CABOURN",
		},
		26: {
			"CARHARTT", "THE NORTH FACE", "NORTH FACE",
			"STUSSY", "CHAMPION", "NIKE", "ADIDAS",
			"FRED PERRY", "LACOSTE", "BEN SHERMAN",
			"COLUMBIA", "L.L.BEAN", "LL BEAN", "PENDLETON",
			"DICKIES", "TIMBERLAND", "WRANGLER", "LEE",
			"WOOLRICH", "SIERRA DESIGNS", "HELLY HANSEN",
			"DANTON", "ORSLOW", "KAPITAL", "VISVIM",
			"ENGINEERED GARMENTS", "BEAMS",
		},
		17: {
			"GAP", "EDDIE BAUER", "LANDS END", "BANANA REPUBLIC",
			"J.CREW", "BROOKS BROTHERS", "TOMMY HILFIGER",
			"NAUTICA", "HANES", "RUSSELL",
			"UNIQLO", "ZARA", "H&M",
			"NEW BALANCE", "PUMA", "REEBOK", "CONVERSE",
		},
	} {
		for _, b := range brands {
			scores[b] = score
		}
	}
	return scores
}

// DefaultKeywords returns the keyword table in tie-break order.
func DefaultKeywords() []KeywordSet {
	return []KeywordSet{
		{Category: model.TierMilitaryArchive, Keywords: []string{
			"M-65", "MA-1", "N-3B", "N-2B", "N-1", "BDU",
			"Army", "Navy", "Air Force", "Military",
			"Combat", "Field Jacket", "Cargo", "Fatigue", "Deck Jacket",
			"Alpha Industries", "Rothco", "Propper", "Buzz Rickson", "Real McCoy",
			"USMC", "USAF", "CWU", "Camo", "Camouflage",
			"Liner", "Parka", "Tanker", "Deck",
			"미군", "군용", "개파카", "밀리터리", "군복", "야상", "카모", "카고",
		}},
		{Category: model.TierWorkwearArchive, Keywords: []string{
			"Carhartt", "Dickies", "Pointer", "Roundhouse", "Round House", "Ben Davis",
			"Red Kap", "Stan Ray", "Key Imperial", "Filson",
			"Work", "Chore", "Overall", "Coverall", "Logger",
			"Denim", "Canvas", "Duck", "Hickory", "Double Knee",
			"Bib", "Painter", "Dungaree",
			"워크웨어", "칼하트", "디키즈", "작업복", "초어", "커버올", "오버올", "더블니", "히코리",
		}},
		{Category: model.TierOutdoorArchive, Keywords: []string{
			"Patagonia", "The North Face", "North Face", "Arc'teryx", "Arcteryx",
			"Columbia", "Mammut", "Helly Hansen", "Marmot", "Salomon",
			"L.L.Bean", "LL Bean", "Eddie Bauer", "Sierra Designs",
			"Pendleton", "Woolrich", "Mont-bell", "Montbell",
			"Outdoor", "Gore-Tex", "Goretex", "Fleece", "Hiking", "Climbing",
			"Anorak", "Nuptse", "Retro X", "Shell", "Pertex", "DWR",
			"파타고니아", "노스페이스", "아크테릭스", "아웃도어", "고어텍스",
			"플리스", "아노락", "눕시", "윈드브레이커",
		}},
		{Category: model.TierJapaneseArchive, Keywords: []string{
			"Visvim", "Kapital", "45rpm", "Evisu", "Porter", "Needles",
			"Beams", "United Arrows", "Nanamica", "Ships", "Journal Standard",
			"Yohji Yamamoto", "Comme des Garcons", "CDG", "Issey Miyake",
			"Sacai", "Undercover", "WTAPS", "Neighborhood", "Human Made",
			"Wacko Maria", "Engineered Garments",
			"Japanese", "Japan", "Selvedge", "Indigo", "Sashiko", "Boro",
			"일본", "빔즈", "니들스", "아메카지", "캐피탈", "비스빔",
			"셀비지", "인디고", "사시코", "보로", "꼼데가르송",
		}},
		{Category: model.TierHeritageEurope, Keywords: []string{
			"Gucci", "Prada", "Louis Vuitton", "Hermes", "Dior", "Chanel",
			"Valentino", "Fendi", "Bottega Veneta", "Versace", "Armani",
			"A.P.C.", "Acne Studios", "COS", "Our Legacy", "Lemaire", "AMI",
			"French", "German", "Swedish", "Italian", "Euro",
			"Heritage", "Vintage", "Classic", "Elegant",
			"유럽", "프랑스", "독일", "이탈리아", "명품", "하이엔드", "디자이너",
			"구찌", "프라다", "루이비통", "에르메스", "샤넬",
		}},
		{Category: model.TierBritishArchive, Keywords: []string{
			"Burberry", "Aquascutum", "Grenfell", "Barbour", "Belstaff",
			"Mackintosh", "Fred Perry", "Baracuta", "Gloverall",
			"Paul Smith", "Vivienne Westwood", "Ted Baker", "Nigel Cabourn",
			"Dunhill", "Dr. Martens", "Clarks",
			"British", "UK", "England", "London", "Scottish",
			"Trench Coat", "Waxed Cotton", "Waxed", "Tweed", "Harris Tweed",
			"Tartan", "Duffle", "Harrington",
			"영국", "바버", "버버리", "브리티시", "왁스", "타탄", "트위드", "트렌치", "더플",
		}},
		{Category: model.TierUnisexArchive, Keywords: []string{
			"Ralph Lauren", "Polo", "Brooks Brothers", "Tommy Hilfiger",
			"Lacoste", "Gant", "J.Crew", "J.Press",
			"Levi's", "Champion", "Nike", "Adidas", "Stussy", "Supreme", "Gap",
			"Unisex", "남녀공용", "유니섹스", "남녀", "공용",
			"프리사이즈", "Free Size", "Freesize", "One Size",
			"오버사이즈", "Oversize", "Oversized", "오버핏",
			"박시핏", "Boxy", "젠더리스", "Genderless", "무지", "Basic",
			"랄프로렌", "폴로", "타미힐피거", "라코스테", "나이키", "아디다스", "리바이스", "갭",
		}},
	}
}
