package namespace

// DiscoveredModule is a Python source file located under a registered root.
type DiscoveredModule struct {
	ID        ModuleID
	Path      string // Absolute path of the .py file
	Namespace string // Tag of the root the module was found under
	IsPackage bool   // __init__.py
}
