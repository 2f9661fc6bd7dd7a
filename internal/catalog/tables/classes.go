package tables

import "github.com/JonMunkholm/campusetl/internal/catalog"

// Classes is the course section export from the scheduling system.
func Classes() catalog.TableConfig {
	return catalog.TableConfig{
		TableName:         "classes",
		Description:       "Course sections offered per term",
		SourceFilePattern: "classes*.csv",
		Validator:         "class",
		ChunkSize:         1000,
		ColumnMappings: []catalog.ColumnMapping{
			column("CLASS_CODE", "class_code", catalog.TypeText, false, codeRules),
			column("TITLE", "title", catalog.TypeText, false, textRules),
			column("TERM", "term", catalog.TypeText, false, codeRules),
			column("CREDITS", "credits", catalog.TypeInteger, false, integerRules),
			column("CAPACITY", "capacity", catalog.TypeInteger, true, integerRules),
			column("INSTRUCTOR", "instructor", catalog.TypeText, true, nameRules),
			column("STARTS_ON", "starts_on", catalog.TypeDate, true, dateRules),
		},
		MinCompletenessScore: 80,
		MinConsistencyScore:  70,
		MaxErrorRate:         5,
		UniqueKey:            []string{"class_code", "term"},
	}
}
