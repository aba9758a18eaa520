package config

// DefaultDimensions is the output size of all-mpnet-base-v2.
const DefaultDimensions = 768

// DefaultLocalBaseURL is the OpenAI-compatible endpoint of a local embedding server.
const DefaultLocalBaseURL = "http://localhost:8081/v1"

// DefaultCollections returns the MaStR energy categories in ingestion order.
// File patterns match the file names of the Gesamtdatenexport.
func DefaultCollections(dim int) []CollectionConfig {
	col := func(name, xsd string, patterns ...string) CollectionConfig {
		return CollectionConfig{
			Name:         name,
			SchemaFile:   xsd,
			VectorField:  "vector",
			Dim:          dim,
			FilePatterns: patterns,
		}
	}
	return []CollectionConfig{
		col("biomasse_anlagen", "AnlagenEegBiomasse.xsd", "*Biomasse*.xml", "*Biogas*.xml", "*Biomethan*.xml"),
		col("solar_anlagen", "AnlagenEegSolar.xsd", "*Solar*.xml", "*Photovoltaik*.xml", "*PV*.xml"),
		col("wind_anlagen", "AnlagenEegWind.xsd", "*Wind*.xml", "*Onshore*.xml", "*Offshore*.xml"),
		col("wasser_anlagen", "AnlagenEegWasser.xsd", "*Wasser*.xml", "*Wasserkraft*.xml"),
		col("geothermie_anlagen", "AnlagenEegGeothermieGrubengasDruckentspannung.xsd",
			"*Geothermie*.xml", "*Grubengas*.xml", "*Druckentspannung*.xml"),
		col("netzanschlusspunkte", "Netzanschlusspunkte.xsd", "*Netzanschlusspunkt*.xml", "*Lokation*.xml"),
		col("netze", "Netze.xsd", "*Netz*.xml", "*Netze*.xml"),
	}
}
