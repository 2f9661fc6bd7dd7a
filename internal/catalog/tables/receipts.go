package tables

import "github.com/JonMunkholm/campusetl/internal/catalog"

// Receipts is the bursar's payment receipt export.
func Receipts() catalog.TableConfig {
	return catalog.TableConfig{
		TableName:         "receipts",
		Description:       "Tuition and fee payment receipts",
		SourceFilePattern: "receipts*.csv",
		Validator:         "receipt",
		ChunkSize:         2000,
		ColumnMappings: []catalog.ColumnMapping{
			column("RECEIPT_NO", "receipt_no", catalog.TypeText, false, codeRules),
			column("STUDENT_ID", "student_id", catalog.TypeText, false, codeRules),
			column("AMOUNT", "amount", catalog.TypeDecimal, false, decimalRules),
			column("PAID_AT", "paid_at", catalog.TypeTimestamp, false, timestampRules),
			enum("METHOD", "method", true, "cash", "card", "transfer", "cheque"),
			column("REFERENCE", "reference", catalog.TypeText, true, textRules),
		},
		MinCompletenessScore: 85,
		MinConsistencyScore:  75,
		MaxErrorRate:         2,
		Dependencies:         []string{"students"},
		UniqueKey:            []string{"receipt_no"},
	}
}
