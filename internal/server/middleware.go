package server

const contextUserIDKey = "user_id"

// usageCategoryKey names the gin key the request logger reads for the metered category.
const usageCategoryKey = "usage_category"
