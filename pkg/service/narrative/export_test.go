package narrative

var ExtractionSchema = extractionSchema
