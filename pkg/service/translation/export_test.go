package translation

var ResponseSchema = responseSchema
