package models

// UserType distinguishes the three account families.
type UserType string

const (
	UserTypeKid    UserType = "kid"
	UserTypeParent UserType = "parent"
	UserTypeSchool UserType = "school"
)

// CanAuthorContent reports whether accounts of type t create posts,
// messages and profile change requests.
func (t UserType) CanAuthorContent() bool {
	return t == UserTypeKid
}

// CanModerate reports whether accounts of type t review kid content.
func (t UserType) CanModerate() bool {
	return t == UserTypeParent
}
