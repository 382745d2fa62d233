package moduledeps

func textual(deps ...ID) *ModuleInfo {
	return &ModuleInfo{
		ModulePath:         "x.swiftmodule",
		DirectDependencies: deps,
		Details:            &SwiftTextualDetails{},
	}
}

func prebuilt(path string, deps ...ID) *ModuleInfo {
	return &ModuleInfo{
		ModulePath:         path,
		DirectDependencies: deps,
		Details:            &SwiftPrebuiltDetails{CompiledModulePath: path},
	}
}

func placeholder(deps ...ID) *ModuleInfo {
	return &ModuleInfo{
		ModulePath:         "placeholder.swiftmodule",
		DirectDependencies: deps,
		Details:            &SwiftPlaceholderDetails{},
	}
}

func clang(sources []string, args []string, deps ...ID) *ModuleInfo {
	d := &ClangDetails{ModuleMapPath: "/inc/module.modulemap"}
	if args != nil {
		d.CapturedPCMArgs = [][]string{args}
	}
	return &ModuleInfo{
		ModulePath:         "c.pcm",
		SourceFiles:        sources,
		DirectDependencies: deps,
		Details:            d,
	}
}

func graphOf(main string, modules Modules) *Graph {
	return &Graph{MainModuleName: main, Modules: modules}
}
