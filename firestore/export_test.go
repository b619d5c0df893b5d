package firestore

// DocID exports docID for testing.
var DocID = docID
