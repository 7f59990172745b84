package wikidata

// Wikidata property identifiers used by the harvester.
const (
	PropertyTransportNetwork  = "P16"  // transport network a line or station belongs to
	PropertyPartOf            = "P361" // part of
	PropertyHasPart           = "P527" // has part(s): system -> lines, line -> stations
	PropertyLine              = "P81"  // connecting line of a station
	PropertyNextStation       = "P197" // adjacent station on the same line
	PropertyTransitionStation = "P833" // interchange station on another line
	PropertyCoordinates       = "P625" // coordinate location
	PropertyColor             = "P465" // sRGB color hex triplet
	PropertyComplexColor      = "P462" // color item, may carry a P465 qualifier
	PropertyOpeningDate       = "P1619" // date of official opening
	PropertyEndDate           = "P582" // end time qualifier
)
