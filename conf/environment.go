package conf

// 运行环境
type EnvironmentEnum int8

const (
	ExampleEnvironmentEnum EnvironmentEnum = 0x01
	MainnetEnvironmentEnum EnvironmentEnum = 0x02
	TestnetEnvironmentEnum EnvironmentEnum = 0x03
)

var SystemEnvironmentEnum = ExampleEnvironmentEnum

func GetYaml() string {
	ConfigFile := "conf/conf_example.yaml"
	switch SystemEnvironmentEnum {
	case MainnetEnvironmentEnum:
		ConfigFile = "conf/conf_pro.yaml"
	case TestnetEnvironmentEnum:
		ConfigFile = "conf/conf_test.yaml"
	}
	return ConfigFile
}
