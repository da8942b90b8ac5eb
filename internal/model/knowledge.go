package model

// Disorder is a node of the knowledge graph, identified by its exact name.
type Disorder struct {
	Name string `json:"name"`
}

// Symptom is a node of the knowledge graph, identified by its exact name.
type Symptom struct {
	Name string `json:"name"`
}

// DisorderSymptomLink is an undirected edge between two existing nodes.
type DisorderSymptomLink struct {
	Disorder string `json:"disorder"`
	Symptom  string `json:"symptom"`
}

// Diagnosis scores one disorder against a set of reported symptoms.
type Diagnosis struct {
	Disorder        string   `json:"disorder"`
	MatchedSymptoms []string `json:"matched_symptoms"`
	Score           float64  `json:"score"`
}
