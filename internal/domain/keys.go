package domain

// KeyPrefix namespaces every key written to a shared Valkey/Redis instance.
const KeyPrefix = "mastrvec:"
