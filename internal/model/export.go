package model

// Snapshot is the derived statistics of one class.
type Snapshot struct {
	ClassID          string         `json:"class_id"`
	TotalStudents    int            `json:"total_students"`
	AssessedStudents int            `json:"assessed_students"`
	CorrectAnswers   int            `json:"correct_answers"`
	WrongAnswers     int            `json:"wrong_answers"`
	TotalAssessments int            `json:"total_assessments"`
	StudentDetails   []StudentStats `json:"student_details"`
}

// StudentStats holds one student's counts.
type StudentStats struct {
	StudentID         string `json:"student_id"`
	StudentName       string `json:"student_name"`
	StudentNumber     string `json:"student_number"`
	Correct           int    `json:"correct"`
	Wrong             int    `json:"wrong"`
	Total             int    `json:"total"`
	CorrectPercentage int    `json:"correct_percentage"`
}

// ReportRow is one roster line of an exported class report. Unlike
// StudentDetails, every student appears, assessed or not.
type ReportRow struct {
	StudentNumber     string
	StudentName       string
	Correct           int
	Wrong             int
	Total             int
	CorrectPercentage int
}

// ClassReport is the exported form of a class's statistics.
type ClassReport struct {
	ClassName string
	Snapshot  Snapshot
	Rows      []ReportRow
}
