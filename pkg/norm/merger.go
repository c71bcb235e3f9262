package norm

import "github.com/shopdesk-io/shopdesk/pkg/models"

// confidenceFloor is the DocQA confidence below which regex extraction
// takes over; regexConfidence is the floor assigned to regex hits.
const (
	confidenceFloor = 0.7
	regexConfidence = 0.8
)

// Merge reconciles DocQA fields with regex extraction over the message
// body and transcript. It is a pure function: per field, a DocQA value
// with confidence >= 0.7 wins; otherwise a regex hit over
// body+transcript replaces it. Every non-null output field carries a
// provenance entry in Source and a confidence entry.
func Merge(doc models.DocFields, bodyText, transcript string) models.NormalizedFields {
	source := map[string]string{}
	conf := map[string]float64{}

	spaced := bodyText + " " + transcript
	joined := bodyText + transcript

	// order_id
	orderID := doc.OrderID
	orderConf := doc.FieldConfidence("order_id")
	if orderID == nil || orderConf < confidenceFloor {
		if regexID := ExtractOrderID(spaced); regexID != "" {
			orderID = &regexID
			source["order_id"] = models.SourceRegex
			conf["order_id"] = maxFloat(orderConf, regexConfidence)
		}
	}
	if orderID != nil && source["order_id"] == "" {
		source["order_id"] = models.SourceDocQA
		conf["order_id"] = orderConf
	}

	// amount
	amount := doc.Amount
	amountConf := doc.FieldConfidence("amount")
	currency := doc.Currency

	amountRaw, currencyHint := ExtractAmountCurrency(joined)
	if (amount == nil || amountConf < confidenceFloor) && amountRaw != "" {
		if normalized := NormalizeAmount(amountRaw); normalized != nil {
			amount = normalized
			source["amount"] = models.SourceRegex
			conf["amount"] = maxFloat(amountConf, regexConfidence)
		}
	}
	if amount != nil && source["amount"] == "" {
		source["amount"] = models.SourceDocQA
		conf["amount"] = amountConf
	}

	// currency
	if currency == nil && currencyHint != "" {
		c := NormalizeCurrency(currencyHint)
		currency = &c
		source["currency"] = models.SourceRegex
		conf["currency"] = regexConfidence
	} else if currency != nil {
		c := NormalizeCurrency(*currency)
		currency = &c
		source["currency"] = models.SourceDocQA
		if v, ok := doc.Confidence["currency"]; ok {
			conf["currency"] = v
		} else {
			conf["currency"] = confidenceFloor
		}
	}

	// order_date
	orderDate := doc.OrderDate
	dateConf := doc.FieldConfidence("order_date")
	if orderDate == nil || dateConf < confidenceFloor {
		if parsed := ParseDateEU(spaced); parsed != nil {
			orderDate = parsed
			source["order_date"] = models.SourceRegex
			conf["order_date"] = maxFloat(dateConf, regexConfidence)
		}
	}
	if orderDate != nil && source["order_date"] == "" {
		source["order_date"] = models.SourceDocQA
		conf["order_date"] = dateConf
	}

	// sku
	sku := doc.SKU
	skuConf := doc.FieldConfidence("sku")
	if sku == nil || skuConf < confidenceFloor {
		if regexSKU := ExtractSKU(spaced); regexSKU != "" {
			sku = &regexSKU
			source["sku"] = models.SourceRegex
			conf["sku"] = maxFloat(skuConf, regexConfidence)
		}
	}
	if sku != nil && source["sku"] == "" {
		source["sku"] = models.SourceDocQA
		conf["sku"] = skuConf
	}

	return models.NormalizedFields{
		OrderID:    orderID,
		Amount:     amount,
		Currency:   currency,
		OrderDate:  orderDate,
		SKU:        sku,
		Confidence: conf,
		Source:     source,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
