package embedding

// MeanPool is exported for testing
var MeanPool = meanPool
