package tables

import (
	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/rules"
)

// Students is the student master export from the registrar system.
func Students() catalog.TableConfig {
	return catalog.TableConfig{
		TableName:         "students",
		Description:       "Student master records from the registrar export",
		SourceFilePattern: "students*.csv",
		Validator:         "student",
		ChunkSize:         1000,
		ColumnMappings: []catalog.ColumnMapping{
			column("STUDENT_ID", "student_id", catalog.TypeText, false, codeRules),
			column("FIRST_NAME", "first_name", catalog.TypeText, false, nameRules),
			column("LAST_NAME", "last_name", catalog.TypeText, false, nameRules),
			column("EMAIL", "email", catalog.TypeEmail, true, emailRules),
			column("DATE_OF_BIRTH", "date_of_birth", catalog.TypeDate, true, dateRules),
			column("ADMITTED_ON", "admitted_on", catalog.TypeDate, true, dateRules),
			column("STATE", "state", catalog.TypeText, true, then(textRules, rules.USState)),
			column("PROGRAM_CODE", "program_code", catalog.TypeText, true, codeRules),
			enum("STATUS", "status", false, "active", "inactive", "graduated", "withdrawn"),
		},
		MinCompletenessScore: 80,
		MinConsistencyScore:  70,
		MaxErrorRate:         5,
		UniqueKey:            []string{"student_id"},
	}
}
