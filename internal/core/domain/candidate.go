package domain

// Box is a pixel-space bounding box for an OCR span.
type Box struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Color is an 8-bit RGB sample averaged over a span's bounding box.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Span is one OCR word plus where it sits and what color it was drawn in.
// The extractor produces spans without interpreting them.
type Span struct {
	Text      string
	Box       Box
	MeanColor Color
}

// Candidate is an unconfirmed, editable parse of one donation region.
// The Needs* flags mark fields the parser could not settle confidently;
// each one blocks confirmation until the actor edits that field.
type Candidate struct {
	TransactionID      string  `json:"transaction_id"`
	ItemID             string  `json:"item_id"`
	ItemConfidence     float64 `json:"item_confidence"`
	Quantity           int     `json:"quantity"`
	Quality            Quality `json:"quality"`
	QualityConfidence  float64 `json:"quality_confidence"`
	SourceText         string  `json:"source_text"`
	NeedsItemReview    bool    `json:"needs_item_review"`
	NeedsQuantityInput bool    `json:"needs_quantity_input"`
	NeedsQualityReview bool    `json:"needs_quality_review"`
}

// Complete reports whether the candidate can be confirmed as-is.
func (c Candidate) Complete() bool {
	return c.ItemID != "" &&
		c.Quantity > 0 &&
		c.Quality.Valid() &&
		!c.NeedsItemReview &&
		!c.NeedsQuantityInput &&
		!c.NeedsQualityReview
}
