package repo

import (
	"fidelity/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMysqlDialector(mysqlCfg config.MySQL) gorm.Dialector {
	return mysql.Open(mysqlCfg.ToDSN())
}

func closeOrm(orm *gorm.DB) error {
	if orm == nil {
		return nil
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}
