package model

// Post is a record of the remote /posts collection. Body carries the
// serialized PolicyInput for posts written by this service.
type Post struct {
	ID     int    `json:"id,omitempty"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	UserID int    `json:"userId"`
}

// User is a record of the remote /users collection.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Username string `json:"username"`
}
