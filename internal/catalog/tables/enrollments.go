package tables

import "github.com/JonMunkholm/campusetl/internal/catalog"

// Enrollments links students to class sections. It depends on both parents
// so they are imported first.
func Enrollments() catalog.TableConfig {
	return catalog.TableConfig{
		TableName:         "enrollments",
		Description:       "Student enrollments in class sections",
		SourceFilePattern: "enrollments*.csv",
		Validator:         "enrollment",
		ChunkSize:         2000,
		ColumnMappings: []catalog.ColumnMapping{
			column("ENROLLMENT_ID", "enrollment_id", catalog.TypeText, false, codeRules),
			column("STUDENT_ID", "student_id", catalog.TypeText, false, codeRules),
			column("CLASS_CODE", "class_code", catalog.TypeText, false, codeRules),
			column("TERM", "term", catalog.TypeText, false, codeRules),
			column("ENROLLED_AT", "enrolled_at", catalog.TypeTimestamp, false, timestampRules),
			column("GRADE", "grade", catalog.TypeText, true, codeRules),
			enum("STATUS", "status", false, "enrolled", "dropped", "completed", "withdrawn"),
		},
		MinCompletenessScore: 75,
		MinConsistencyScore:  70,
		MaxErrorRate:         5,
		Dependencies:         []string{"students", "classes"},
		UniqueKey:            []string{"enrollment_id"},
	}
}
